package orchestrator

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mkovach/fieldsync/internal/models"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// TankSlotForm is one calibration-tank slot of a site note submission.
type TankSlotForm struct {
	ID       string `json:"id"`
	Value    string `json:"value"`
	Unit     string `json:"unit"`
	Pressure string `json:"pressure"`
}

// NoteForm is the input of a site note submission.
type NoteForm struct {
	Site             string        `json:"site"`
	TimeIn           time.Time     `json:"time_in"`
	TimeOut          time.Time     `json:"time_out"`
	Names            string        `json:"names"`
	Instrument       string        `json:"instrument"`
	InstrumentFamily string        `json:"instrument_family"`
	N2Pressure       string        `json:"n2_pressure"`
	LTS              *TankSlotForm `json:"lts"`
	LowCal           *TankSlotForm `json:"low_cal"`
	MidCal           *TankSlotForm `json:"mid_cal"`
	HighCal          *TankSlotForm `json:"high_cal"`
	Notes            string        `json:"notes"`
	UserID           string        `json:"user_id"`
	BadData          *BadDataForm  `json:"bad_data"`
}

// Validate checks the form before any document is touched.
func (f NoteForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Site, validation.Required, validation.Match(idPattern)),
		validation.Field(&f.TimeIn, validation.Required),
		validation.Field(&f.Names, validation.Required),
	)
}

// slot returns the form slot matching the entry slot name.
func (f NoteForm) slot(name models.SlotName) *TankSlotForm {
	switch name {
	case models.SlotLTS:
		return f.LTS
	case models.SlotLowCal:
		return f.LowCal
	case models.SlotMidCal:
		return f.MidCal
	case models.SlotHighCal:
		return f.HighCal
	}
	return nil
}

// TankReadingForm is the input of a standalone tank reading submission.
type TankReadingForm struct {
	TankID   string  `json:"tank_id"`
	Pressure float64 `json:"pressure"`
	Location string  `json:"location"`
	UserID   string  `json:"user_id"`
	Comment  string  `json:"comment"`
}

func (f TankReadingForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.TankID, validation.Required, validation.Match(idPattern)),
		validation.Field(&f.Pressure, validation.Min(0.0)),
		validation.Field(&f.Location, validation.Required),
	)
}

// MaintenanceForm is the input of an instrument maintenance submission.
type MaintenanceForm struct {
	InstrumentFamily string `json:"instrument_family"`
	Instrument       string `json:"instrument"`
	Site             string `json:"site"`
	Note             string `json:"note"`
	Name             string `json:"name"`
	// Mobile marks instruments that move between sites and therefore
	// carry a "Currently at" location line in their document.
	Mobile bool `json:"mobile"`
}

func (f MaintenanceForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Instrument, validation.Required, validation.Match(idPattern)),
		validation.Field(&f.Note, validation.Required),
		validation.Field(&f.Name, validation.Required),
	)
}

// VisitForm is the input of a planned-visit submission.
type VisitForm struct {
	Date      string `json:"date"`
	Name      string `json:"name"`
	Site      string `json:"site"`
	Equipment string `json:"equipment"`
	Notes     string `json:"notes"`
}

func (f VisitForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Date, validation.Required, validation.Date("2006-01-02")),
		validation.Field(&f.Name, validation.Required),
		validation.Field(&f.Site, validation.Required),
	)
}

// BadDataForm flags a data interval as bad for a site/instrument pair.
type BadDataForm struct {
	Site       string `json:"site"`
	Instrument string `json:"instrument"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	OldID      string `json:"old_id"`
	NewID      string `json:"new_id"`
	Reason     string `json:"reason"`
	Name       string `json:"name"`
}

func (f BadDataForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Site, validation.Required, validation.Match(idPattern)),
		validation.Field(&f.Instrument, validation.Required, validation.Match(idPattern)),
		validation.Field(&f.StartTime, validation.Required),
		validation.Field(&f.EndTime, validation.Required),
	)
}
