package index

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/mkovach/fieldsync/internal/codec"
	"github.com/mkovach/fieldsync/internal/remote"
)

const siteNotesDir = "site_notes"

// Sync walks the mirror's site notes and brings the index up to date:
//   - new/changed documents are parsed and upserted
//   - documents removed from disk are deleted from the index
//
// The checksum comparison makes an unchanged mirror a cheap no-op.
func Sync(ctx context.Context, db *DB, mirror *remote.Mirror, logger *slog.Logger) error {
	metas, err := mirror.Walk(siteNotesDir)
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if !strings.HasSuffix(m.Path, ".md") {
			continue
		}
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Token {
			continue
		}

		doc, err := mirror.Get(ctx, m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexDocument(db, m.Path, doc.Content); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexDocument parses a site note and upserts it into the DB.
func indexDocument(db *DB, docPath string, data []byte) error {
	note := codec.ParseNote(data)
	site := note.Site
	if site == "" {
		site = strings.TrimSuffix(path.Base(docPath), ".md")
	}

	entries := make([]EntryRow, 0, len(note.Entries))
	for i, e := range note.Entries {
		row := EntryRow{
			Site:     site,
			Position: i,
			TimeIn:   e.TimeIn,
			TimeOut:  e.TimeOut,
			Names:    e.Names,
			Notes:    e.AdditionalNotes,
		}
		if e.Instrument != nil {
			row.Instrument = *e.Instrument
		}
		entries = append(entries, row)
	}

	row := DocumentRow{
		Path:       docPath,
		Site:       site,
		Checksum:   remote.Checksum(data),
		EntryCount: len(note.Entries),
	}
	if len(note.Entries) > 0 && note.Entries[0].TimeIn != nil {
		row.UpdatedAt = *note.Entries[0].TimeIn
	}
	return db.UpsertDocument(row, string(data), entries)
}
