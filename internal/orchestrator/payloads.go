package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkovach/fieldsync/internal/models"
)

// Queued payload shapes. Each carries everything replay needs so no
// form state has to survive a restart.

type siteNotePayload struct {
	Site      string `json:"site"`
	EntryText string `json:"entry_text"`
}

type maintNotePayload struct {
	Family     string `json:"family"`
	Instrument string `json:"instrument"`
	Site       string `json:"site,omitempty"`
	Note       string `json:"note"`
	// SetSite updates the document's "Currently at" line during replay.
	SetSite bool `json:"set_site,omitempty"`
}

type badDataPayload struct {
	Site       string            `json:"site"`
	Instrument string            `json:"instrument"`
	Row        models.BadDataRow `json:"row"`
}

func newMutation(fam models.Family, payload any) (models.PendingMutation, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.PendingMutation{}, fmt.Errorf("encode %s payload: %w", fam, err)
	}
	return models.PendingMutation{
		ID:       uuid.NewString(),
		Family:   fam,
		QueuedAt: time.Now().UTC(),
		Payload:  raw,
	}, nil
}
