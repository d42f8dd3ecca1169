package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

const bootstrapFetchers = 4

// Bootstrap primes the session: it pulls every site note plus the tank
// ledger and visit log into the mirror, and rebuilds the in-memory
// ledger. When the remote is unreachable it falls back to whatever the
// mirror already holds so the app starts offline with the last state.
func (s *Service) Bootstrap(ctx context.Context) error {
	if !s.Online(ctx) {
		s.logger.Info("bootstrap: remote unreachable, starting from mirror")
		if doc, err := s.mirror.Get(ctx, tankLedgerPath); err == nil {
			s.ledger.Rebuild(doc.Content)
		}
		return nil
	}

	names, err := s.remote.List(ctx, siteNotesDir)
	if err != nil {
		return fmt.Errorf("bootstrap: list site notes: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bootstrapFetchers)
	for _, name := range names {
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		path := siteNotesDir + "/" + name
		g.Go(func() error {
			doc, err := s.remote.Get(gctx, path)
			if err != nil {
				s.logger.Warn("bootstrap: fetch failed", slog.String("path", path), slog.Any("error", err))
				return nil
			}
			if err := s.mirror.Write(path, doc.Content); err != nil {
				s.logger.Warn("bootstrap: mirror write failed", slog.String("path", path), slog.Any("error", err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if doc, err := s.remote.Get(ctx, tankLedgerPath); err == nil {
		if err := s.mirror.Write(tankLedgerPath, doc.Content); err != nil {
			s.logger.Warn("bootstrap: mirror write failed", slog.String("path", tankLedgerPath), slog.Any("error", err))
		}
		s.ledger.Rebuild(doc.Content)
	} else {
		s.logger.Warn("bootstrap: tank ledger fetch failed", slog.Any("error", err))
		if doc, merr := s.mirror.Get(ctx, tankLedgerPath); merr == nil {
			s.ledger.Rebuild(doc.Content)
		}
	}

	if doc, err := s.remote.Get(ctx, visitLogPath); err == nil {
		if err := s.mirror.Write(visitLogPath, doc.Content); err != nil {
			s.logger.Warn("bootstrap: mirror write failed", slog.String("path", visitLogPath), slog.Any("error", err))
		}
	}

	s.logger.Info("bootstrap complete", slog.Int("site_notes", len(names)))
	return nil
}
