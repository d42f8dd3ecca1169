package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mkovach/fieldsync/internal/apperr"
)

// fakeContentsAPI is a minimal in-memory contents API with sha tokens.
type fakeContentsAPI struct {
	docs map[string]string // path -> content
	shas map[string]string // path -> sha
	next int
}

func (f *fakeContentsAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path[len("/repos/owner/field-data/contents/"):]
		switch r.Method {
		case http.MethodGet:
			content, ok := f.docs[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"name":    path,
				"sha":     f.shas[path],
				"content": base64.StdEncoding.EncodeToString([]byte(content)),
			})
		case http.MethodPut:
			var req struct {
				Content string `json:"content"`
				SHA     string `json:"sha"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if cur, exists := f.shas[path]; exists && req.SHA != cur {
				w.WriteHeader(http.StatusConflict)
				return
			}
			raw, _ := base64.StdEncoding.DecodeString(req.Content)
			f.next++
			f.docs[path] = string(raw)
			f.shas[path] = string(rune('a' + f.next))
			json.NewEncoder(w).Encode(map[string]any{
				"content": map[string]string{"sha": f.shas[path]},
			})
		}
	}
}

func newFakeAPI(t *testing.T) (*fakeContentsAPI, *Contents) {
	t.Helper()
	api := &fakeContentsAPI{docs: map[string]string{}, shas: map[string]string{}}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return api, NewContents(srv.URL, "owner/field-data", "main", "tok", 5*time.Second)
}

func TestContents_GetPut(t *testing.T) {
	api, c := newFakeAPI(t)
	api.docs["site_notes/BRW.md"] = "# Site id: **BRW**\n"
	api.shas["site_notes/BRW.md"] = "sha1"

	ctx := context.Background()
	doc, err := c.Get(ctx, "site_notes/BRW.md")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(doc.Content) != "# Site id: **BRW**\n" || doc.Token != "sha1" {
		t.Errorf("doc = %q token %q", doc.Content, doc.Token)
	}

	newTok, err := c.Put(ctx, "site_notes/BRW.md", []byte("updated"), doc.Token, "update note")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if newTok == "" || newTok == doc.Token {
		t.Errorf("put returned token %q", newTok)
	}
}

func TestContents_StaleTokenConflict(t *testing.T) {
	_, c := newFakeAPI(t)
	ctx := context.Background()

	tok, err := c.Put(ctx, "a.md", []byte("v1"), "", "create")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Put(ctx, "a.md", []byte("v2"), tok, "first"); err != nil {
		t.Fatal(err)
	}
	_, err = c.Put(ctx, "a.md", []byte("v3"), tok, "second")
	if !errors.Is(err, apperr.ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict", err)
	}
}

func TestContents_NotFoundDistinctFromTransport(t *testing.T) {
	_, c := newFakeAPI(t)
	_, err := c.Get(context.Background(), "missing.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if apperr.IsTransport(err) {
		t.Error("not-found classified as transport error")
	}
}

func TestContents_UnreachableIsTransport(t *testing.T) {
	c := NewContents("http://127.0.0.1:1", "owner/field-data", "main", "tok", 500*time.Millisecond)
	_, err := c.Get(context.Background(), "a.md")
	if !apperr.IsTransport(err) {
		t.Errorf("err = %v, want TransportError", err)
	}
	if err := c.Ping(context.Background()); !apperr.IsTransport(err) {
		t.Errorf("ping err = %v, want TransportError", err)
	}
}

func TestContents_AuthErrorIsTransportWithStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := NewContents(srv.URL, "owner/field-data", "main", "bad", time.Second)

	_, err := c.Get(context.Background(), "a.md")
	var te *apperr.TransportError
	if !errors.As(err, &te) || te.Status != http.StatusUnauthorized {
		t.Errorf("err = %v, want transport error with 401", err)
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrVersionConflict) {
		t.Error("auth error conflated with not-found or conflict")
	}
}

func TestContents_Base64WithNewlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// The API wraps base64 bodies with newlines.
		enc := base64.StdEncoding.EncodeToString([]byte("wrapped body content"))
		wrapped := enc[:10] + "\n" + enc[10:] + "\n"
		json.NewEncoder(w).Encode(map[string]string{"sha": "s", "content": wrapped})
	}))
	defer srv.Close()
	c := NewContents(srv.URL, "owner/field-data", "main", "tok", time.Second)

	doc, err := c.Get(context.Background(), "w.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(doc.Content) != "wrapped body content" {
		t.Errorf("content = %q", doc.Content)
	}
}
