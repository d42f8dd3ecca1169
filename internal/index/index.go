package index

// SiteIndex defines the interface for site document indexing operations.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type SiteIndex interface {
	UpsertDocument(row DocumentRow, body string, entries []EntryRow) error
	DeleteDocument(path string) error
	GetDocument(path string) (*DocumentRow, error)
	ListSites() ([]SiteSummary, error)
	LatestEntry(site string) (*EntryRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies SiteIndex at compile time.
var _ SiteIndex = (*DB)(nil)
