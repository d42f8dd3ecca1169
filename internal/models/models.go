// Package models defines the domain types for fieldsync.
package models

import (
	"encoding/json"
	"time"
)

// Entry is one site-visit record inside a site's note document.
// Optional fields are nil when the source block did not carry them;
// a block with no recognizable fields at all parses to an all-nil
// Entry rather than being dropped, so entry counts survive hand edits.
type Entry struct {
	TimeIn          *time.Time
	TimeOut         *time.Time
	Names           string
	Instrument      *string
	N2Pressure      *string
	LTS             *TankInfo
	LowCal          *TankInfo
	MidCal          *TankInfo
	HighCal         *TankInfo
	AdditionalNotes string
}

// TankInfo describes one calibration-tank slot inside an Entry.
// It never exists independently of an Entry.
type TankInfo struct {
	ID       string
	Value    string
	Unit     string // "ppm" unless the document says otherwise
	Pressure string
}

// SlotName identifies one of the four tank slots of an Entry.
type SlotName string

const (
	SlotLTS     SlotName = "lts"
	SlotLowCal  SlotName = "low_cal"
	SlotMidCal  SlotName = "mid_cal"
	SlotHighCal SlotName = "high_cal"
)

// SlotNames is the fixed slot order used when iterating an Entry.
var SlotNames = []SlotName{SlotLTS, SlotLowCal, SlotMidCal, SlotHighCal}

// Slot returns the tank info for the named slot, or nil.
func (e *Entry) Slot(name SlotName) *TankInfo {
	switch name {
	case SlotLTS:
		return e.LTS
	case SlotLowCal:
		return e.LowCal
	case SlotMidCal:
		return e.MidCal
	case SlotHighCal:
		return e.HighCal
	}
	return nil
}

// ParsedNote is the result of parsing a full site note document.
// Entries are ordered newest-first; Entries[0] is authoritative for
// current-state queries (current instrument, current tank assignment).
type ParsedNote struct {
	Site    string
	Entries []Entry
}

// SpeciesStats carries the per-gas calibration metadata of a TankRecord.
// Values are kept as the exact strings found in the ledger CSV and are
// copied through unchanged when a record is derived from a prior one.
type SpeciesStats struct {
	Value           string
	Stdev           string
	Sterr           string
	N               string
	RelativeTo      string
	CalibrationFile string
	InstrumentID    string
}

// IsotopeStats carries the d13C calibration metadata of a TankRecord.
type IsotopeStats struct {
	Value string
	Stdev string
	Sterr string
	N     string
}

// TankRecord is one historical reading for a physical calibration tank.
// Records are append-only: once written to the ledger CSV they are never
// mutated or deleted.
type TankRecord struct {
	FillID    string
	Serial    string
	UpdatedAt time.Time
	Pressure  float64
	Location  string
	Owner     string
	CO2       SpeciesStats
	CH4       SpeciesStats
	CO        SpeciesStats
	D13C      IsotopeStats
	OttoFile  string
	TestCode  string
	Comment   string
	UserID    string
	TankID    string
}

// VisitInfo is one planned future site visit, stored one JSON line per
// record in the flat visit log.
type VisitInfo struct {
	Date      string `json:"date"`
	Name      string `json:"name"`
	Site      string `json:"site"`
	Equipment string `json:"equipment"`
	Notes     string `json:"notes"`
}

// Family tags a pending mutation with its document category. Families
// are replayed in the fixed ReplayOrder so that site-note replay finds
// visit/bad-data/instrument state already consistent, and tank updates
// land after every replay that may have advanced the ledger.
type Family string

const (
	FamilyVisits          Family = "visits"
	FamilyBadData         Family = "bad-data"
	FamilyInstrumentMaint Family = "instrument-maintenance"
	FamilySiteNotes       Family = "site-notes"
	FamilyTankUpdates     Family = "tank-updates"
)

// ReplayOrder is the fixed cross-family drain order.
var ReplayOrder = []Family{
	FamilyVisits,
	FamilyBadData,
	FamilyInstrumentMaint,
	FamilySiteNotes,
	FamilyTankUpdates,
}

// PendingMutation is one queued offline write. Payload is the family-
// specific record, serialized so that replay needs no original form
// state. Mutations within a family replay in enqueue order.
type PendingMutation struct {
	ID         string          `json:"id"`
	Family     Family          `json:"family"`
	QueuedAt   time.Time       `json:"queued_at"`
	Site       string          `json:"site,omitempty"`
	Instrument string          `json:"instrument,omitempty"`
	TankID     string          `json:"tank_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// BadDataRow is one flagged bad-data interval for a site/instrument pair.
type BadDataRow struct {
	StartTime string
	EndTime   string
	OldID     string
	NewID     string
	LoggedAt  time.Time
	Name      string
	Reason    string
}
