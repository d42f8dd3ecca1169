// Package orchestrator coordinates every field submission: it derives
// the full set of document mutations from a form, applies them to the
// remote store when reachable, and falls back to the durable offline
// queue when it is not.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mkovach/fieldsync/internal/apperr"
	"github.com/mkovach/fieldsync/internal/codec"
	"github.com/mkovach/fieldsync/internal/ledger"
	"github.com/mkovach/fieldsync/internal/models"
	"github.com/mkovach/fieldsync/internal/queue"
	"github.com/mkovach/fieldsync/internal/remote"
)

// Prober answers whether the remote store is reachable right now.
type Prober interface {
	Ping(ctx context.Context) error
}

// NotifyFunc receives submission lifecycle events for the UI stream.
type NotifyFunc func(event string, data map[string]any)

// Config wires a Service.
type Config struct {
	Remote remote.Store
	Prober Prober
	Mirror *remote.Mirror
	Queue  *queue.Queue
	Ledger *ledger.Ledger
	Logger *slog.Logger
	Notify NotifyFunc
	// Pace is the delay between consecutive replay writes.
	Pace time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

// Service is the submission orchestrator.
type Service struct {
	remote remote.Store
	prober Prober
	mirror *remote.Mirror
	queue  *queue.Queue
	ledger *ledger.Ledger
	logger *slog.Logger
	notify NotifyFunc
	pace   time.Duration
	now    func() time.Time

	// replayMu serializes Replay: the session-start drain and the API
	// trigger can fire at the same time, and a double drain would write
	// every queued mutation to the remote twice.
	replayMu sync.Mutex
}

const defaultPace = 50 * time.Millisecond

func New(cfg Config) *Service {
	s := &Service{
		remote: cfg.Remote,
		prober: cfg.Prober,
		mirror: cfg.Mirror,
		queue:  cfg.Queue,
		ledger: cfg.Ledger,
		logger: cfg.Logger,
		notify: cfg.Notify,
		pace:   cfg.Pace,
		now:    cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notify == nil {
		s.notify = func(string, map[string]any) {}
	}
	if s.pace == 0 {
		s.pace = defaultPace
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// SubmitResult reports what happened to a submission.
type SubmitResult struct {
	Queued  bool     `json:"queued"`
	Steps   []string `json:"steps,omitempty"`
	Message string   `json:"message"`
}

// Online reports whether the remote store currently answers.
func (s *Service) Online(ctx context.Context) bool {
	if s.prober == nil {
		return true
	}
	return s.prober.Ping(ctx) == nil
}

// readStore picks where reads come from: the remote when reachable,
// the local mirror otherwise.
func (s *Service) readStore(online bool) remote.Store {
	if online {
		return s.remote
	}
	return s.mirror
}

// getOrInit fetches a document, returning initial content and an empty
// token when it does not exist yet.
func getOrInit(ctx context.Context, st remote.Store, path, initial string) (string, string, error) {
	doc, err := st.Get(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return initial, "", nil
		}
		return "", "", err
	}
	return string(doc.Content), doc.Token, nil
}

// putRemote writes to the remote store and mirrors the result locally.
// A mirror failure is logged but never fails the submission: the remote
// copy is authoritative and the mirror catches up on next bootstrap.
func (s *Service) putRemote(ctx context.Context, path string, content []byte, token, message string) error {
	if _, err := s.remote.Put(ctx, path, content, token, message); err != nil {
		return err
	}
	if err := s.mirror.Write(path, content); err != nil {
		s.logger.Warn("mirror write-through failed", slog.String("path", path), slog.Any("error", err))
	}
	return nil
}

// QueueDepths exposes the per-family pending counts.
func (s *Service) QueueDepths() map[models.Family]int {
	return s.queue.Depths()
}

// Visits lists the planned visits from the visit log.
func (s *Service) Visits(ctx context.Context) ([]models.VisitInfo, error) {
	content, _, err := getOrInit(ctx, s.readStore(s.Online(ctx)), visitLogPath, "")
	if err != nil {
		return nil, err
	}
	return codec.ParseVisits([]byte(content)), nil
}

// SiteNote fetches and parses a site's note document.
func (s *Service) SiteNote(ctx context.Context, site string) (*models.ParsedNote, error) {
	doc, err := s.readStore(s.Online(ctx)).Get(ctx, siteNotePath(site))
	if err != nil {
		return nil, err
	}
	return codec.ParseNote(doc.Content), nil
}

// PredictSiteRefill runs the depletion heuristic over a site's two most
// recent entries. Fewer than two entries yields no predictions.
func (s *Service) PredictSiteRefill(ctx context.Context, site string) ([]RefillPrediction, error) {
	note, err := s.SiteNote(ctx, site)
	if err != nil {
		return nil, err
	}
	if len(note.Entries) < 2 {
		return nil, nil
	}
	return PredictRefill(note.Entries[0], note.Entries[1]), nil
}

func (s *Service) notifyDepth(fam models.Family) {
	n, err := s.queue.Depth(fam)
	if err != nil {
		return
	}
	s.notify("queue.depth", map[string]any{
		"family": string(fam),
		"depth":  strconv.Itoa(n),
	})
}
