package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mkovach/fieldsync/internal/apperr"
	"github.com/mkovach/fieldsync/internal/ledger"
	"github.com/mkovach/fieldsync/internal/queue"
	"github.com/mkovach/fieldsync/internal/remote"
)

// stubStore is an in-memory remote.Store with switchable failure modes.
type stubStore struct {
	mu       sync.Mutex
	docs     map[string]string
	toks     map[string]string
	seq      int
	offline  bool // every call fails with a transport error
	failPuts int  // puts allowed before transport failure; -1 = unlimited
	getErr   error
	putErr   error
	putPaths []string // successful put order
}

func newStubStore() *stubStore {
	return &stubStore{docs: map[string]string{}, toks: map[string]string{}, failPuts: -1}
}

func (st *stubStore) transportErr(op string) error {
	return &apperr.TransportError{Op: op, Err: errors.New("connection refused")}
}

func (st *stubStore) Get(_ context.Context, path string) (*remote.Document, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.offline {
		return nil, st.transportErr("get " + path)
	}
	if st.getErr != nil {
		return nil, st.getErr
	}
	content, ok := st.docs[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, apperr.ErrNotFound)
	}
	return &remote.Document{Content: []byte(content), Token: st.toks[path]}, nil
}

func (st *stubStore) Put(_ context.Context, path string, content []byte, token, _ string) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.offline {
		return "", st.transportErr("put " + path)
	}
	if st.putErr != nil {
		return "", st.putErr
	}
	if st.failPuts >= 0 && len(st.putPaths) >= st.failPuts {
		return "", st.transportErr("put " + path)
	}
	if cur, exists := st.toks[path]; exists && token != cur {
		return "", fmt.Errorf("put %s: %w", path, apperr.ErrVersionConflict)
	}
	st.seq++
	st.docs[path] = string(content)
	st.toks[path] = "tok" + strconv.Itoa(st.seq)
	st.putPaths = append(st.putPaths, path)
	return st.toks[path], nil
}

func (st *stubStore) List(_ context.Context, dir string) ([]string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.offline {
		return nil, st.transportErr("list " + dir)
	}
	var out []string
	for path := range st.docs {
		if strings.HasPrefix(path, dir+"/") && !strings.Contains(path[len(dir)+1:], "/") {
			out = append(out, path[len(dir)+1:])
		}
	}
	return out, nil
}

func (st *stubStore) Ping(_ context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.offline {
		return st.transportErr("ping")
	}
	return nil
}

// seed installs a document without touching the put log.
func (st *stubStore) seed(path, content string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq++
	st.docs[path] = content
	st.toks[path] = "tok" + strconv.Itoa(st.seq)
}

func (st *stubStore) doc(path string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.docs[path]
}

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testService(t *testing.T, st *stubStore) *Service {
	t.Helper()
	return testServiceWithQueue(t, st, t.TempDir())
}

func testServiceWithQueue(t *testing.T, st *stubStore, queueDir string) *Service {
	t.Helper()
	mirror, err := remote.NewMirror(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	q, err := queue.New(queueDir)
	if err != nil {
		t.Fatal(err)
	}
	return New(Config{
		Remote: st,
		Prober: st,
		Mirror: mirror,
		Queue:  q,
		Ledger: ledger.New(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Pace:   time.Millisecond,
		Now:    func() time.Time { return fixedNow },
	})
}
