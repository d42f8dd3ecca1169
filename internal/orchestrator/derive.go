package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/mkovach/fieldsync/internal/apperr"
	"github.com/mkovach/fieldsync/internal/codec"
	"github.com/mkovach/fieldsync/internal/models"
)

// derived is the full set of side mutations a site note implies beyond
// the note document itself.
type derived struct {
	// TankRecords are appended to the ledger CSV; removals come before
	// installs so a swapped slot reads as remove-then-install.
	TankRecords []models.TankRecord
	MaintNotes  []maintNote
	BadData     *models.BadDataRow
}

// maintNote is one prepend to an instrument maintenance document.
// Note is the complete, already-formatted log line.
type maintNote struct {
	Family     string
	Instrument string
	Site       string
	Note       string
	SetSite    bool
}

const defaultInstrumentFamily = "analyzers"

func entryFromForm(f NoteForm) models.Entry {
	e := models.Entry{Names: f.Names, AdditionalNotes: f.Notes}
	if !f.TimeIn.IsZero() {
		t := f.TimeIn
		e.TimeIn = &t
	}
	if !f.TimeOut.IsZero() {
		t := f.TimeOut
		e.TimeOut = &t
	}
	if f.Instrument != "" {
		v := f.Instrument
		e.Instrument = &v
	}
	if f.N2Pressure != "" {
		v := f.N2Pressure
		e.N2Pressure = &v
	}
	e.LTS = tankInfoFrom(f.LTS)
	e.LowCal = tankInfoFrom(f.LowCal)
	e.MidCal = tankInfoFrom(f.MidCal)
	e.HighCal = tankInfoFrom(f.HighCal)
	return e
}

func tankInfoFrom(s *TankSlotForm) *models.TankInfo {
	if s == nil {
		return nil
	}
	return &models.TankInfo{ID: s.ID, Value: s.Value, Unit: s.Unit, Pressure: s.Pressure}
}

// deriveFromNote computes the side mutations of a site note against the
// previous entry of the same site (nil when the site is new).
func (s *Service) deriveFromNote(f NoteForm, prev *models.Entry, now time.Time) derived {
	var d derived

	// Removals first: a tank leaving a slot gets a depot record before
	// its replacement's record is appended.
	for _, name := range models.SlotNames {
		if prev == nil {
			break
		}
		prevSlot := prev.Slot(name)
		if prevSlot == nil || prevSlot.ID == "" {
			continue
		}
		newSlot := f.slot(name)
		if newSlot != nil && newSlot.ID == prevSlot.ID {
			continue
		}
		d.TankRecords = append(d.TankRecords, s.tankRecordFor(
			prevSlot.ID, depotPressure, depotLocation, f.UserID, now,
			"removed from "+f.Site,
		))
	}
	for _, name := range models.SlotNames {
		newSlot := f.slot(name)
		if newSlot == nil || newSlot.ID == "" {
			continue
		}
		pressure, ok := parsePressure(newSlot.Pressure)
		if !ok {
			continue
		}
		if prev != nil {
			if p := prev.Slot(name); p != nil && p.ID == newSlot.ID && p.Pressure == newSlot.Pressure {
				continue // nothing changed for this slot
			}
		}
		d.TankRecords = append(d.TankRecords, s.tankRecordFor(
			newSlot.ID, pressure, f.Site, f.UserID, now, "",
		))
	}

	// Instrument swap: note the removal on the old document and the
	// install on the new one, and move their "Currently at" lines.
	family := f.InstrumentFamily
	if family == "" {
		family = defaultInstrumentFamily
	}
	var prevInst string
	if prev != nil && prev.Instrument != nil {
		prevInst = *prev.Instrument
	}
	if prevInst != "" && prevInst != f.Instrument {
		d.MaintNotes = append(d.MaintNotes, maintNote{
			Family:     family,
			Instrument: prevInst,
			Site:       depotLocation,
			Note:       codec.BuildMaintNote(now, f.Names, "Removed from "+f.Site),
			SetSite:    true,
		})
	}
	if f.Instrument != "" && f.Instrument != prevInst {
		d.MaintNotes = append(d.MaintNotes, maintNote{
			Family:     family,
			Instrument: f.Instrument,
			Site:       f.Site,
			Note:       codec.BuildMaintNote(now, f.Names, "Installed at "+f.Site),
			SetSite:    true,
		})
	}

	if f.BadData != nil {
		d.BadData = &models.BadDataRow{
			StartTime: f.BadData.StartTime,
			EndTime:   f.BadData.EndTime,
			OldID:     f.BadData.OldID,
			NewID:     f.BadData.NewID,
			LoggedAt:  now,
			Name:      f.Names,
			Reason:    f.BadData.Reason,
		}
	}
	return d
}

// tankRecordFor derives a new ledger record for a tank, copying the
// calibration metadata of the latest known record so species stats
// survive pressure-only updates.
func (s *Service) tankRecordFor(id string, pressure float64, location, userID string, now time.Time, comment string) models.TankRecord {
	rec, ok := s.ledger.LatestFold(id)
	if !ok {
		rec = models.TankRecord{TankID: id}
	}
	rec.UpdatedAt = now
	rec.Pressure = pressure
	rec.Location = location
	rec.UserID = userID
	rec.Comment = comment
	return rec
}

// previousEntry returns the newest entry of a site's note document, or
// nil when the site has no document or no entries yet. Read failures
// other than not-found propagate: deriving against a wrongly-assumed
// empty history would skip the depot-removal records a tank swap owes
// the ledger.
func (s *Service) previousEntry(ctx context.Context, online bool, site string) (*models.Entry, error) {
	doc, err := s.readStore(online).Get(ctx, siteNotePath(site))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	note := codec.ParseNote(doc.Content)
	if len(note.Entries) == 0 {
		return nil, nil
	}
	return &note.Entries[0], nil
}
