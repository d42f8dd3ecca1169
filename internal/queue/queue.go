// Package queue persists mutations that could not reach the remote
// store. Each document family gets its own append-only JSON-lines file;
// records are replayed FIFO and the file is removed only once every
// record in it has been consumed.
package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkovach/fieldsync/internal/apperr"
	"github.com/mkovach/fieldsync/internal/models"
)

// fileNames maps each family to its sub-log under the queue directory.
var fileNames = map[models.Family]string{
	models.FamilyVisits:          "visitfile.txt",
	models.FamilyBadData:         "baddata.txt",
	models.FamilyInstrumentMaint: "instrument_maint.txt",
	models.FamilySiteNotes:       "site_notes.txt",
	models.FamilyTankUpdates:     "tank_updates.txt",
}

// Queue is the durable offline mutation log.
type Queue struct {
	dir string
}

// New creates the queue directory if needed.
func New(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("queue: mkdir: %w", err)
	}
	return &Queue{dir: dir}, nil
}

func (q *Queue) file(fam models.Family) (string, error) {
	name, ok := fileNames[fam]
	if !ok {
		return "", fmt.Errorf("queue: unknown family %q", fam)
	}
	return filepath.Join(q.dir, name), nil
}

// Enqueue appends a mutation to its family's log and verifies the write
// landed by reading the file back. A failed verification reports
// ErrLocalStorage so the caller knows the entry may be lost, as opposed
// to a network failure where the entry was never attempted.
func (q *Queue) Enqueue(fam models.Family, m models.PendingMutation) error {
	path, err := q.file(fam)
	if err != nil {
		return err
	}
	line, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("queue: encode mutation: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("queue: open %s: %w", path, apperr.ErrLocalStorage)
	}
	_, werr := f.Write(line)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil || serr != nil || cerr != nil {
		return fmt.Errorf("queue: append %s: %w", fam, apperr.ErrLocalStorage)
	}

	// Read-back verification: the last line must be exactly what was
	// written, otherwise report the entry as possibly lost.
	data, err := os.ReadFile(path)
	if err != nil || !bytes.HasSuffix(data, line) {
		return fmt.Errorf("queue: verify %s: %w", fam, apperr.ErrLocalStorage)
	}
	return nil
}

// Load returns every pending mutation of a family in enqueue order. A
// missing log means an empty queue; a corrupt line reports
// ErrLocalStorage rather than silently dropping queued field data.
func (q *Queue) Load(fam models.Family) ([]models.PendingMutation, error) {
	path, err := q.file(fam)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: read %s: %w", fam, apperr.ErrLocalStorage)
	}

	var out []models.PendingMutation
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var m models.PendingMutation
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("queue: corrupt record in %s: %w", fam, apperr.ErrLocalStorage)
		}
		out = append(out, m)
	}
	return out, nil
}

// Complete marks the first n mutations of a family as replayed. When
// everything is consumed the log file is removed; otherwise the
// remainder is rewritten atomically so a partial replay failure never
// loses the unreplayed tail.
func (q *Queue) Complete(fam models.Family, n int) error {
	if n <= 0 {
		return nil
	}
	path, err := q.file(fam)
	if err != nil {
		return err
	}
	pending, err := q.Load(fam)
	if err != nil {
		return err
	}
	if n >= len(pending) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("queue: remove %s: %w", fam, apperr.ErrLocalStorage)
		}
		return nil
	}

	var buf bytes.Buffer
	for _, m := range pending[n:] {
		line, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("queue: encode remainder: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("queue: write remainder: %w", apperr.ErrLocalStorage)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("queue: replace %s: %w", fam, apperr.ErrLocalStorage)
	}
	return nil
}

// Depth returns the number of pending mutations for a family.
func (q *Queue) Depth(fam models.Family) (int, error) {
	pending, err := q.Load(fam)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// Depths returns the pending count per family, for the UI badge.
func (q *Queue) Depths() map[models.Family]int {
	out := make(map[models.Family]int, len(fileNames))
	for fam := range fileNames {
		n, err := q.Depth(fam)
		if err != nil {
			continue
		}
		out[fam] = n
	}
	return out
}
