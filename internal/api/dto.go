package api

import (
	"time"

	"github.com/mkovach/fieldsync/internal/models"
	"github.com/mkovach/fieldsync/internal/orchestrator"
)

// SubmitResponse reports the outcome of any submit endpoint (aliased
// from the domain layer).
type SubmitResponse = orchestrator.SubmitResult

// SiteSummary is one row of the site list screen.
type SiteSummary struct {
	Site       string     `json:"site"`
	EntryCount int        `json:"entry_count"`
	LastVisit  *time.Time `json:"last_visit,omitempty"`
	Instrument string     `json:"instrument,omitempty"`
}

// SiteListResponse wraps the site list.
type SiteListResponse struct {
	Sites []SiteSummary `json:"sites"`
}

// TankSlot is one calibration-tank slot of an entry.
type TankSlot struct {
	ID       string `json:"id"`
	Value    string `json:"value"`
	Unit     string `json:"unit"`
	Pressure string `json:"pressure"`
}

// EntryDetail is one site-visit entry in a site detail response.
type EntryDetail struct {
	TimeIn     *time.Time `json:"time_in,omitempty"`
	TimeOut    *time.Time `json:"time_out,omitempty"`
	Names      string     `json:"names,omitempty"`
	Instrument string     `json:"instrument,omitempty"`
	N2Pressure string     `json:"n2_pressure,omitempty"`
	LTS        *TankSlot  `json:"lts,omitempty"`
	LowCal     *TankSlot  `json:"low_cal,omitempty"`
	MidCal     *TankSlot  `json:"mid_cal,omitempty"`
	HighCal    *TankSlot  `json:"high_cal,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// SiteDetailResponse is a parsed site note document, newest entry first.
type SiteDetailResponse struct {
	Site    string        `json:"site"`
	Entries []EntryDetail `json:"entries"`
}

// TankListResponse lists every tank the ledger knows.
type TankListResponse struct {
	Tanks []string `json:"tanks"`
}

// TankRecordDetail is one ledger record in API responses.
type TankRecordDetail struct {
	TankID    string    `json:"tank_id"`
	FillID    string    `json:"fill_id,omitempty"`
	Serial    string    `json:"serial,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Pressure  float64   `json:"pressure"`
	Location  string    `json:"location,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	CO2       string    `json:"co2,omitempty"`
	CH4       string    `json:"ch4,omitempty"`
	CO        string    `json:"co,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
}

// RefillResponse wraps depletion predictions for a site.
type RefillResponse struct {
	Predictions []orchestrator.RefillPrediction `json:"predictions"`
}

// VisitsResponse wraps the planned-visit list.
type VisitsResponse struct {
	Visits []models.VisitInfo `json:"visits"`
}

// QueueResponse reports pending offline mutations per family.
type QueueResponse struct {
	Depths map[string]int `json:"depths"`
	Total  int            `json:"total"`
}

// ReplayResponse reports how many mutations each family replayed.
type ReplayResponse struct {
	Replayed map[string]int `json:"replayed"`
}

// SearchHit is a single search result in the API response.
type SearchHit struct {
	Path    string `json:"path"`
	Site    string `json:"site"`
	Snippet string `json:"snippet"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
}

// HealthResponse reports process and connectivity status.
type HealthResponse struct {
	Status string `json:"status"`
	Online bool   `json:"online"`
}

func entryDetail(e models.Entry) EntryDetail {
	d := EntryDetail{
		TimeIn:  e.TimeIn,
		TimeOut: e.TimeOut,
		Names:   e.Names,
		Notes:   e.AdditionalNotes,
	}
	if e.Instrument != nil {
		d.Instrument = *e.Instrument
	}
	if e.N2Pressure != nil {
		d.N2Pressure = *e.N2Pressure
	}
	d.LTS = tankSlot(e.LTS)
	d.LowCal = tankSlot(e.LowCal)
	d.MidCal = tankSlot(e.MidCal)
	d.HighCal = tankSlot(e.HighCal)
	return d
}

func tankSlot(t *models.TankInfo) *TankSlot {
	if t == nil {
		return nil
	}
	return &TankSlot{ID: t.ID, Value: t.Value, Unit: t.Unit, Pressure: t.Pressure}
}

func tankRecordDetail(r models.TankRecord) TankRecordDetail {
	return TankRecordDetail{
		TankID:    r.TankID,
		FillID:    r.FillID,
		Serial:    r.Serial,
		UpdatedAt: r.UpdatedAt,
		Pressure:  r.Pressure,
		Location:  r.Location,
		Owner:     r.Owner,
		CO2:       r.CO2.Value,
		CH4:       r.CH4.Value,
		CO:        r.CO.Value,
		Comment:   r.Comment,
		UserID:    r.UserID,
	}
}
