// Package ledger maintains the in-process view of calibration tank
// history. It is a derived index: durability comes from the remote CSV
// and the offline queue, never from the ledger itself.
package ledger

import (
	"sort"
	"strings"
	"sync"

	"github.com/mkovach/fieldsync/internal/codec"
	"github.com/mkovach/fieldsync/internal/models"
)

// Ledger groups tank records by tank id. The content is a pure function
// of the last Rebuild blob plus the ordered inserts since; records are
// never reordered or removed.
type Ledger struct {
	mu    sync.RWMutex
	tanks map[string][]models.TankRecord
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{tanks: make(map[string][]models.TankRecord)}
}

// Rebuild replaces the entire ledger from a tank CSV blob. The blob may
// carry a UTF-8 BOM; malformed rows are skipped by the codec.
func (l *Ledger) Rebuild(csvBlob []byte) {
	records := codec.ParseTankCSV(csvBlob)
	tanks := make(map[string][]models.TankRecord, len(records))
	for _, r := range records {
		tanks[r.TankID] = append(tanks[r.TankID], r)
	}
	l.mu.Lock()
	l.tanks = tanks
	l.mu.Unlock()
}

// Insert appends a record to its tank's history, creating the history
// if the tank is unknown.
func (l *Ledger) Insert(r models.TankRecord) {
	l.mu.Lock()
	l.tanks[r.TankID] = append(l.tanks[r.TankID], r)
	l.mu.Unlock()
}

// Latest returns the record with the maximum UpdatedAt for the tank.
// On equal timestamps the later-inserted record wins, so the result is
// deterministic regardless of how the tie arose.
func (l *Ledger) Latest(tankID string) (models.TankRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return latestOf(l.tanks[tankID])
}

// LatestFold is Latest with a case-insensitive fallback: ledger keys
// are case-sensitive on ingest but user-entered ids may differ in case.
func (l *Ledger) LatestFold(tankID string) (models.TankRecord, bool) {
	if rec, ok := l.Latest(tankID); ok {
		return rec, true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for id, history := range l.tanks {
		if strings.EqualFold(id, tankID) {
			return latestOf(history)
		}
	}
	return models.TankRecord{}, false
}

func latestOf(history []models.TankRecord) (models.TankRecord, bool) {
	if len(history) == 0 {
		return models.TankRecord{}, false
	}
	best := 0
	for i := 1; i < len(history); i++ {
		if !history[i].UpdatedAt.Before(history[best].UpdatedAt) {
			best = i
		}
	}
	return history[best], true
}

// IDs returns every known tank id, sorted.
func (l *Ledger) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.tanks))
	for id := range l.tanks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// History returns a copy of a tank's record list in insertion order.
func (l *Ledger) History(tankID string) []models.TankRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	history := l.tanks[tankID]
	out := make([]models.TankRecord, len(history))
	copy(out, history)
	return out
}
