package orchestrator

import (
	"fmt"
	"math"
	"time"

	"github.com/mkovach/fieldsync/internal/models"
)

const (
	// noDepletionDays is reported when no depletion can be inferred:
	// same-day readings, rising pressure, or unparseable values.
	noDepletionDays = 365

	// RefillWarningDays marks a prediction as urgent.
	RefillWarningDays = 90
)

// RefillPrediction estimates when one tank slot runs empty.
type RefillPrediction struct {
	Slot          models.SlotName `json:"slot"`
	TankID        string          `json:"tank_id"`
	DaysRemaining int             `json:"days_remaining"`
	Warning       bool            `json:"warning"`
}

// PredictRefill compares the two most recent entries of a site and
// extrapolates each tank slot's pressure linearly. Slots missing from
// either entry, or whose tank changed between the entries, are skipped
// since their readings describe different gas volumes.
func PredictRefill(curr, prev models.Entry) []RefillPrediction {
	currAt := entryTime(curr)
	prevAt := entryTime(prev)
	if currAt == nil || prevAt == nil {
		return nil
	}

	var out []RefillPrediction
	for _, name := range models.SlotNames {
		c, p := curr.Slot(name), prev.Slot(name)
		if c == nil || p == nil || c.ID != p.ID {
			continue
		}
		cp, ok := parsePressure(c.Pressure)
		if !ok {
			continue
		}
		pp, ok := parsePressure(p.Pressure)
		if !ok {
			continue
		}
		days := daysUntilEmpty(pp, *prevAt, cp, *currAt)
		out = append(out, RefillPrediction{
			Slot:          name,
			TankID:        c.ID,
			DaysRemaining: days,
			Warning:       days <= RefillWarningDays,
		})
	}
	return out
}

// daysUntilEmpty extrapolates the pressure drop between two readings
// forward from the later reading's date.
func daysUntilEmpty(prevPressure float64, prevAt time.Time, currPressure float64, currAt time.Time) int {
	days := int(currAt.Sub(prevAt).Hours() / 24)
	if days <= 0 {
		return noDepletionDays
	}
	rate := (currPressure - prevPressure) / float64(days)
	if rate >= 0 {
		return noDepletionDays
	}
	return int(math.Floor(-currPressure/rate)) - days
}

func entryTime(e models.Entry) *time.Time {
	if e.TimeIn != nil {
		return e.TimeIn
	}
	return e.TimeOut
}

// parsePressure reads the leading number of a pressure string,
// tolerating unit suffixes like "2000 psi".
func parsePressure(s string) (float64, bool) {
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0, false
	}
	return v, true
}
