package index

import (
	"database/sql"
	"fmt"
	"time"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path       string
	Site       string
	Checksum   string
	EntryCount int
	UpdatedAt  time.Time
}

// EntryRow is one flattened site-visit entry. Position 0 is the newest
// entry of its site.
type EntryRow struct {
	Site       string
	Position   int
	TimeIn     *time.Time
	TimeOut    *time.Time
	Names      string
	Instrument string
	Notes      string
}

// SiteSummary is the per-site roll-up used by the site list screen.
type SiteSummary struct {
	Site       string
	EntryCount int
	LastVisit  *time.Time
	Instrument string
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string
	Site    string
	Snippet string
}

// UpsertDocument replaces a document row, its flattened entries, and its
// FTS entry within a transaction.
func (db *DB) UpsertDocument(row DocumentRow, body string, entries []EntryRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, site, checksum, entry_count, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			site        = excluded.site,
			checksum    = excluded.checksum,
			entry_count = excluded.entry_count,
			body        = excluded.body,
			updated_at  = excluded.updated_at
	`, row.Path, row.Site, row.Checksum, row.EntryCount, body, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, row.Path, row.Site, body); err != nil {
		return err
	}

	// Replace entries: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM entries WHERE site = ?`, row.Site)
	if len(entries) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO entries (site, position, time_in, time_out, names, instrument, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare entry insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.Exec(row.Site, e.Position, e.TimeIn, e.TimeOut, e.Names, e.Instrument, e.Notes); err != nil {
				return fmt.Errorf("index: insert entry: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document, its FTS entry, and its entries.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var site string
	_ = tx.QueryRow(`SELECT site FROM documents WHERE path = ?`, path).Scan(&site)

	ftsDelete(tx, path)
	if site != "" {
		_, _ = tx.Exec(`DELETE FROM entries WHERE site = ?`, site)
	}
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// GetDocument returns the indexed row for a path, or nil when absent.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	var row DocumentRow
	err := db.conn.QueryRow(`
		SELECT path, site, checksum, entry_count, updated_at
		FROM documents WHERE path = ?
	`, path).Scan(&row.Path, &row.Site, &row.Checksum, &row.EntryCount, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return &row, nil
}

// ListSites returns one summary per indexed site, alphabetical.
func (db *DB) ListSites() ([]SiteSummary, error) {
	rows, err := db.conn.Query(`
		SELECT d.site,
		       d.entry_count,
		       e.time_in,
		       e.instrument
		FROM documents d
		LEFT JOIN entries e ON e.site = d.site AND e.position = 0
		WHERE d.site != ''
		ORDER BY d.site
	`)
	if err != nil {
		return nil, fmt.Errorf("index: list sites: %w", err)
	}
	defer rows.Close()

	var out []SiteSummary
	for rows.Next() {
		var s SiteSummary
		var timeIn sql.NullTime
		var instrument sql.NullString
		if err := rows.Scan(&s.Site, &s.EntryCount, &timeIn, &instrument); err != nil {
			return nil, err
		}
		if timeIn.Valid {
			t := timeIn.Time
			s.LastVisit = &t
		}
		s.Instrument = instrument.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestEntry returns a site's newest entry, or nil when the site has
// no indexed entries.
func (db *DB) LatestEntry(site string) (*EntryRow, error) {
	var e EntryRow
	var timeIn, timeOut sql.NullTime
	err := db.conn.QueryRow(`
		SELECT site, position, time_in, time_out, names, instrument, notes
		FROM entries WHERE site = ? AND position = 0
	`, site).Scan(&e.Site, &e.Position, &timeIn, &timeOut, &e.Names, &e.Instrument, &e.Notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: latest entry: %w", err)
	}
	if timeIn.Valid {
		t := timeIn.Time
		e.TimeIn = &t
	}
	if timeOut.Valid {
		t := timeOut.Time
		e.TimeOut = &t
	}
	return &e, nil
}

// AllChecksums returns path -> checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
