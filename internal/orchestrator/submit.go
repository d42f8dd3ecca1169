package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mkovach/fieldsync/internal/apperr"
	"github.com/mkovach/fieldsync/internal/codec"
	"github.com/mkovach/fieldsync/internal/models"
)

// Step labels used in aggregate error messages.
const (
	stepSiteNote   = "site note"
	stepTankLedger = "tank ledger"
	stepInstrument = "instrument log"
	stepBadData    = "bad data log"
)

// SubmitSiteNote records a site visit. Beyond prepending the entry to
// the site's note document it derives and applies every side mutation:
// ledger records for changed tank slots, install/remove notes on
// instrument documents, and an optional bad-data row. Derived writes
// happen after the note; a mid-sequence failure reports which steps
// landed and never rolls back.
func (s *Service) SubmitSiteNote(ctx context.Context, f NoteForm) (*SubmitResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	online := s.Online(ctx)
	prev, err := s.previousEntry(ctx, online, f.Site)
	if err != nil {
		if !online || !apperr.IsTransport(err) {
			return nil, err
		}
		// Connectivity died between the probe and the prior-entry read.
		// Nothing has been written, so derive against the mirror's copy
		// and take the offline path.
		s.logger.Warn("remote unreachable reading prior entry, queueing offline",
			slog.String("site", f.Site), slog.Any("error", err))
		online = false
		if prev, err = s.previousEntry(ctx, false, f.Site); err != nil {
			return nil, err
		}
	}
	entryText := codec.BuildEntry(entryFromForm(f))
	d := s.deriveFromNote(f, prev, now)

	if !online {
		return s.queueSiteNote(f, entryText, d)
	}

	completed, failed, err := s.applySiteNote(ctx, f, entryText, d)
	if err != nil {
		// Connectivity died between the probe and the first write:
		// nothing landed, so the whole submission can still go offline.
		if len(completed) == 0 && apperr.IsTransport(err) {
			s.logger.Warn("remote unreachable mid-submit, queueing offline",
				slog.String("site", f.Site), slog.Any("error", err))
			return s.queueSiteNote(f, entryText, d)
		}
		if errors.Is(err, apperr.ErrVersionConflict) {
			s.notify("submit.conflict", map[string]any{"site": f.Site, "step": failed})
		}
		agg := &apperr.AggregateError{Completed: completed, Failed: failed, Err: err}
		return &SubmitResult{Steps: completed, Message: agg.Error()}, agg
	}

	s.notify("submit.ok", map[string]any{"kind": "site-note", "site": f.Site})
	return &SubmitResult{Steps: completed, Message: "site note saved"}, nil
}

// applySiteNote runs the online write sequence. It returns the steps
// that completed, and on failure the step that did not.
func (s *Service) applySiteNote(ctx context.Context, f NoteForm, entryText string, d derived) ([]string, string, error) {
	completed := []string{}

	if err := s.applySiteNoteText(ctx, f.Site, entryText); err != nil {
		return completed, stepSiteNote, err
	}
	completed = append(completed, stepSiteNote)

	if len(d.TankRecords) > 0 {
		if err := s.applyTankRows(ctx, d.TankRecords, true); err != nil {
			return completed, stepTankLedger, err
		}
		completed = append(completed, stepTankLedger)
	}
	if len(d.MaintNotes) > 0 {
		for _, n := range d.MaintNotes {
			if err := s.applyMaint(ctx, n); err != nil {
				return completed, stepInstrument, err
			}
		}
		completed = append(completed, stepInstrument)
	}
	if d.BadData != nil {
		if err := s.applyBadData(ctx, f.BadData.Site, f.BadData.Instrument, *d.BadData); err != nil {
			return completed, stepBadData, err
		}
		completed = append(completed, stepBadData)
	}
	return completed, "", nil
}

// applySiteNoteText prepends an already-built entry to a site document,
// creating the document when the site is new.
func (s *Service) applySiteNoteText(ctx context.Context, site, entryText string) error {
	path := siteNotePath(site)
	content, token, err := getOrInit(ctx, s.remote, path, codec.BuildNoteDocument(site))
	if err != nil {
		return err
	}
	merged := codec.MergePrepend(content, entryText)
	return s.putRemote(ctx, path, []byte(merged), token, "Site note: "+site)
}

// applyTankRows prepends ledger rows to the tank CSV in one write.
// insert controls whether the in-memory ledger is updated too; replayed
// records were inserted when they were queued.
func (s *Service) applyTankRows(ctx context.Context, recs []models.TankRecord, insert bool) error {
	content, token, err := getOrInit(ctx, s.remote, tankLedgerPath, "")
	if err != nil {
		return err
	}
	rows := make([]string, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, codec.BuildTankRecordString(rec))
	}
	merged := codec.PrependTankRows(content, rows)
	if err := s.putRemote(ctx, tankLedgerPath, []byte(merged), token, "Tank ledger update"); err != nil {
		return err
	}
	if insert {
		for _, rec := range recs {
			s.ledger.Insert(rec)
		}
	}
	return nil
}

func (s *Service) applyMaint(ctx context.Context, n maintNote) error {
	path := maintPath(n.Family, n.Instrument)
	content, token, err := getOrInit(ctx, s.remote, path, codec.BuildMaintDocument(n.Instrument, n.Site))
	if err != nil {
		return err
	}
	doc := codec.PrependMaintNote(content, n.Note)
	if n.SetSite {
		doc = codec.SetCurrentSite(doc, n.Site)
	}
	return s.putRemote(ctx, path, []byte(doc), token, "Maintenance: "+n.Instrument)
}

func (s *Service) applyBadData(ctx context.Context, site, instrument string, row models.BadDataRow) error {
	path := badDataPath(site, instrument)
	content, token, err := getOrInit(ctx, s.remote, path, "")
	if err != nil {
		return err
	}
	doc := codec.AppendBadDataRow(content, codec.BuildBadDataRow(row))
	return s.putRemote(ctx, path, []byte(doc), token, fmt.Sprintf("Bad data: %s/%s", site, instrument))
}

func (s *Service) applyVisit(ctx context.Context, v models.VisitInfo) error {
	content, token, err := getOrInit(ctx, s.remote, visitLogPath, "")
	if err != nil {
		return err
	}
	doc := codec.AppendVisitLine(content, codec.BuildVisitLine(v))
	return s.putRemote(ctx, visitLogPath, []byte(doc), token, "Visit log update")
}

// queueSiteNote stores the note and all its derived mutations offline.
// Derived tank records still land in the in-memory ledger immediately
// so refill predictions and later derivations see them. A failure
// partway through reports which steps were already queued — the user
// needs to know a blind retry would queue those again.
func (s *Service) queueSiteNote(f NoteForm, entryText string, d derived) (*SubmitResult, error) {
	queued := []string{}
	fail := func(step string, err error) (*SubmitResult, error) {
		if len(queued) == 0 {
			return nil, err
		}
		agg := &apperr.AggregateError{Completed: queued, Failed: step, Err: err}
		return &SubmitResult{Queued: true, Steps: queued, Message: agg.Error()}, agg
	}

	m, err := newMutation(models.FamilySiteNotes, siteNotePayload{Site: f.Site, EntryText: entryText})
	if err != nil {
		return nil, err
	}
	m.Site = f.Site
	if err := s.queue.Enqueue(models.FamilySiteNotes, m); err != nil {
		return nil, err
	}
	queued = append(queued, stepSiteNote)

	for _, rec := range d.TankRecords {
		tm, err := newMutation(models.FamilyTankUpdates, rec)
		if err != nil {
			return fail(stepTankLedger, err)
		}
		tm.Site = f.Site
		tm.TankID = rec.TankID
		if err := s.queue.Enqueue(models.FamilyTankUpdates, tm); err != nil {
			return fail(stepTankLedger, err)
		}
		s.ledger.Insert(rec)
	}
	if len(d.TankRecords) > 0 {
		queued = append(queued, stepTankLedger)
	}
	for _, n := range d.MaintNotes {
		mm, err := newMutation(models.FamilyInstrumentMaint, maintNotePayload{
			Family:     n.Family,
			Instrument: n.Instrument,
			Site:       n.Site,
			Note:       n.Note,
			SetSite:    n.SetSite,
		})
		if err != nil {
			return fail(stepInstrument, err)
		}
		mm.Instrument = n.Instrument
		if err := s.queue.Enqueue(models.FamilyInstrumentMaint, mm); err != nil {
			return fail(stepInstrument, err)
		}
	}
	if len(d.MaintNotes) > 0 {
		queued = append(queued, stepInstrument)
	}
	if d.BadData != nil {
		bm, err := newMutation(models.FamilyBadData, badDataPayload{
			Site:       f.BadData.Site,
			Instrument: f.BadData.Instrument,
			Row:        *d.BadData,
		})
		if err != nil {
			return fail(stepBadData, err)
		}
		bm.Site = f.BadData.Site
		bm.Instrument = f.BadData.Instrument
		if err := s.queue.Enqueue(models.FamilyBadData, bm); err != nil {
			return fail(stepBadData, err)
		}
	}

	s.notify("submit.queued", map[string]any{"kind": "site-note", "site": f.Site})
	s.notifyDepth(models.FamilySiteNotes)
	return &SubmitResult{Queued: true, Message: "saved offline; will sync when connection returns"}, nil
}

// SubmitTankReading records a standalone pressure reading for a tank.
func (s *Service) SubmitTankReading(ctx context.Context, f TankReadingForm) (*SubmitResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	rec := s.tankRecordFor(f.TankID, f.Pressure, f.Location, f.UserID, s.now(), f.Comment)

	if s.Online(ctx) {
		err := s.applyTankRows(ctx, []models.TankRecord{rec}, true)
		if err == nil {
			s.notify("submit.ok", map[string]any{"kind": "tank-reading", "tank": f.TankID})
			return &SubmitResult{Steps: []string{stepTankLedger}, Message: "tank reading saved"}, nil
		}
		if !apperr.IsTransport(err) {
			return nil, err
		}
		s.logger.Warn("remote unreachable, queueing tank reading", slog.Any("error", err))
	}
	return s.queueTankRecord(rec)
}

func (s *Service) queueTankRecord(rec models.TankRecord) (*SubmitResult, error) {
	m, err := newMutation(models.FamilyTankUpdates, rec)
	if err != nil {
		return nil, err
	}
	m.TankID = rec.TankID
	m.Site = rec.Location
	if err := s.queue.Enqueue(models.FamilyTankUpdates, m); err != nil {
		return nil, err
	}
	s.ledger.Insert(rec)
	s.notify("submit.queued", map[string]any{"kind": "tank-reading", "tank": rec.TankID})
	s.notifyDepth(models.FamilyTankUpdates)
	return &SubmitResult{Queued: true, Message: "saved offline; will sync when connection returns"}, nil
}

// SubmitMaintenance prepends a note to an instrument's maintenance log.
func (s *Service) SubmitMaintenance(ctx context.Context, f MaintenanceForm) (*SubmitResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	family := f.InstrumentFamily
	if family == "" {
		family = defaultInstrumentFamily
	}
	n := maintNote{
		Family:     family,
		Instrument: f.Instrument,
		Site:       f.Site,
		Note:       codec.BuildMaintNote(s.now(), f.Name, f.Note),
		SetSite:    f.Mobile && f.Site != "",
	}

	if s.Online(ctx) {
		err := s.applyMaint(ctx, n)
		if err == nil {
			s.notify("submit.ok", map[string]any{"kind": "maintenance", "instrument": f.Instrument})
			return &SubmitResult{Steps: []string{stepInstrument}, Message: "maintenance note saved"}, nil
		}
		if !apperr.IsTransport(err) {
			return nil, err
		}
		s.logger.Warn("remote unreachable, queueing maintenance note", slog.Any("error", err))
	}

	m, err := newMutation(models.FamilyInstrumentMaint, maintNotePayload{
		Family:     n.Family,
		Instrument: n.Instrument,
		Site:       n.Site,
		Note:       n.Note,
		SetSite:    n.SetSite,
	})
	if err != nil {
		return nil, err
	}
	m.Instrument = f.Instrument
	if err := s.queue.Enqueue(models.FamilyInstrumentMaint, m); err != nil {
		return nil, err
	}
	s.notify("submit.queued", map[string]any{"kind": "maintenance", "instrument": f.Instrument})
	s.notifyDepth(models.FamilyInstrumentMaint)
	return &SubmitResult{Queued: true, Message: "saved offline; will sync when connection returns"}, nil
}

// SubmitVisit appends a planned visit to the shared visit log.
func (s *Service) SubmitVisit(ctx context.Context, f VisitForm) (*SubmitResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	v := models.VisitInfo{Date: f.Date, Name: f.Name, Site: f.Site, Equipment: f.Equipment, Notes: f.Notes}

	if s.Online(ctx) {
		err := s.applyVisit(ctx, v)
		if err == nil {
			s.notify("submit.ok", map[string]any{"kind": "visit", "site": f.Site})
			return &SubmitResult{Message: "visit saved"}, nil
		}
		if !apperr.IsTransport(err) {
			return nil, err
		}
		s.logger.Warn("remote unreachable, queueing visit", slog.Any("error", err))
	}

	m, err := newMutation(models.FamilyVisits, v)
	if err != nil {
		return nil, err
	}
	m.Site = f.Site
	if err := s.queue.Enqueue(models.FamilyVisits, m); err != nil {
		return nil, err
	}
	s.notify("submit.queued", map[string]any{"kind": "visit", "site": f.Site})
	s.notifyDepth(models.FamilyVisits)
	return &SubmitResult{Queued: true, Message: "saved offline; will sync when connection returns"}, nil
}

// SubmitBadData flags a data interval as bad without a full site note.
func (s *Service) SubmitBadData(ctx context.Context, f BadDataForm) (*SubmitResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	row := models.BadDataRow{
		StartTime: f.StartTime,
		EndTime:   f.EndTime,
		OldID:     f.OldID,
		NewID:     f.NewID,
		LoggedAt:  s.now(),
		Name:      f.Name,
		Reason:    f.Reason,
	}

	if s.Online(ctx) {
		err := s.applyBadData(ctx, f.Site, f.Instrument, row)
		if err == nil {
			s.notify("submit.ok", map[string]any{"kind": "bad-data", "site": f.Site})
			return &SubmitResult{Message: "bad data interval saved"}, nil
		}
		if !apperr.IsTransport(err) {
			return nil, err
		}
		s.logger.Warn("remote unreachable, queueing bad-data row", slog.Any("error", err))
	}

	m, err := newMutation(models.FamilyBadData, badDataPayload{Site: f.Site, Instrument: f.Instrument, Row: row})
	if err != nil {
		return nil, err
	}
	m.Site = f.Site
	m.Instrument = f.Instrument
	if err := s.queue.Enqueue(models.FamilyBadData, m); err != nil {
		return nil, err
	}
	s.notify("submit.queued", map[string]any{"kind": "bad-data", "site": f.Site})
	s.notifyDepth(models.FamilyBadData)
	return &SubmitResult{Queued: true, Message: "saved offline; will sync when connection returns"}, nil
}
