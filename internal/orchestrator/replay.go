package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkovach/fieldsync/internal/models"
)

// Replay drains the offline queue against the remote store. Families
// drain in the fixed ReplayOrder; within a family mutations replay in
// enqueue order with a short pause between writes so the upstream API
// is not hammered. A failure aborts the failing family but the
// remaining families still get their turn, and everything already
// replayed is marked complete so nothing is written twice.
func (s *Service) Replay(ctx context.Context) map[models.Family]int {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	replayed := make(map[models.Family]int, len(models.ReplayOrder))
	for _, fam := range models.ReplayOrder {
		pending, err := s.queue.Load(fam)
		if err != nil {
			s.logger.Warn("replay: load failed", slog.String("family", string(fam)), slog.Any("error", err))
			continue
		}
		if len(pending) == 0 {
			continue
		}

		n := 0
		for _, m := range pending {
			if err := s.replayOne(ctx, m); err != nil {
				s.logger.Warn("replay: family aborted",
					slog.String("family", string(fam)),
					slog.String("mutation", m.ID),
					slog.Any("error", err))
				s.notify("replay.error", map[string]any{"family": string(fam), "error": err.Error()})
				break
			}
			n++
			if !s.pause(ctx) {
				break
			}
		}
		if err := s.queue.Complete(fam, n); err != nil {
			s.logger.Error("replay: completing drained mutations failed",
				slog.String("family", string(fam)), slog.Any("error", err))
		}
		replayed[fam] = n
		s.notifyDepth(fam)
		s.notify("replay.family", map[string]any{"family": string(fam), "replayed": n})
		if ctx.Err() != nil {
			break
		}
	}
	return replayed
}

func (s *Service) replayOne(ctx context.Context, m models.PendingMutation) error {
	switch m.Family {
	case models.FamilyVisits:
		var v models.VisitInfo
		if err := json.Unmarshal(m.Payload, &v); err != nil {
			return fmt.Errorf("decode visit %s: %w", m.ID, err)
		}
		return s.applyVisit(ctx, v)

	case models.FamilyBadData:
		var p badDataPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return fmt.Errorf("decode bad-data %s: %w", m.ID, err)
		}
		return s.applyBadData(ctx, p.Site, p.Instrument, p.Row)

	case models.FamilyInstrumentMaint:
		var p maintNotePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return fmt.Errorf("decode maintenance %s: %w", m.ID, err)
		}
		return s.applyMaint(ctx, maintNote{
			Family:     p.Family,
			Instrument: p.Instrument,
			Site:       p.Site,
			Note:       p.Note,
			SetSite:    p.SetSite,
		})

	case models.FamilySiteNotes:
		var p siteNotePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return fmt.Errorf("decode site note %s: %w", m.ID, err)
		}
		return s.applySiteNoteText(ctx, p.Site, p.EntryText)

	case models.FamilyTankUpdates:
		var rec models.TankRecord
		if err := json.Unmarshal(m.Payload, &rec); err != nil {
			return fmt.Errorf("decode tank record %s: %w", m.ID, err)
		}
		// Already in the in-memory ledger since enqueue time.
		return s.applyTankRows(ctx, []models.TankRecord{rec}, false)
	}
	return fmt.Errorf("unknown family %q for mutation %s", m.Family, m.ID)
}

// pause waits the replay pacing interval; false means the context was
// cancelled and the caller should stop.
func (s *Service) pause(ctx context.Context) bool {
	t := time.NewTimer(s.pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
