// Package remote reads and writes repository documents with optimistic
// concurrency. Every read returns an opaque version token; every write
// to an existing path must carry the token it read, and a stale token
// is rejected rather than silently overwriting.
package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document is one fetched document with its version token.
type Document struct {
	Content []byte
	Token   string
}

// FileMeta is a lightweight listing item with content token.
type FileMeta struct {
	Path      string
	Token     string
	UpdatedAt time.Time
}

// Store is the uniform document contract the sync core depends on:
// one implementation talks to the hosted repository, the other to the
// local filesystem mirror used for browsing while offline.
type Store interface {
	// Get returns the document at path, or apperr.ErrNotFound.
	Get(ctx context.Context, path string) (*Document, error)
	// Put writes content and returns the new version token. token must
	// match the current remote state (apperr.ErrVersionConflict
	// otherwise) and is empty only for first-ever creation of a path.
	Put(ctx context.Context, path string, content []byte, token, message string) (string, error)
	// List returns the names inside a directory.
	List(ctx context.Context, dir string) ([]string, error)
}

// Checksum returns the hex-encoded SHA-256 of data; it is the version
// token of mirror documents.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
