package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mkovach/fieldsync/internal/apperr"
)

// Contents implements Store against the hosted repository's contents
// API: GET returns base64 content plus a sha version token, PUT
// requires the sha of the content it replaces.
type Contents struct {
	base   string // API base URL, e.g. https://api.example.com
	repo   string // owner/name
	branch string
	token  string // bearer token, supplied by the auth handshake
	client *http.Client
}

// NewContents creates a contents-API client. timeout bounds every
// request; a timeout surfaces as a TransportError like any other
// network failure.
func NewContents(baseURL, repo, branch, token string, timeout time.Duration) *Contents {
	return &Contents{
		base:   strings.TrimRight(baseURL, "/"),
		repo:   repo,
		branch: branch,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *Contents) url(path string) string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", c.base, c.repo, path)
}

type contentsItem struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content contentsItem `json:"content"`
}

func (c *Contents) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.client.Do(req)
}

// Get fetches a document and its version token.
func (c *Contents) Get(ctx context.Context, path string) (*Document, error) {
	url := c.url(path)
	if c.branch != "" {
		url += "?ref=" + c.branch
	}
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &apperr.TransportError{Op: "get " + path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &apperr.TransportError{Op: "get " + path, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	var item contentsItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, &apperr.TransportError{Op: "get " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	// The API wraps base64 bodies with newlines.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(item.Content, "\n", ""))
	if err != nil {
		return nil, &apperr.TransportError{Op: "get " + path, Err: fmt.Errorf("decode content: %w", err)}
	}
	return &Document{Content: raw, Token: item.SHA}, nil
}

// Put writes a document. token is the sha returned by the Get that
// preceded this write; the API rejects stale tokens so concurrent edits
// from another device surface as ErrVersionConflict, never as a silent
// overwrite.
func (c *Contents) Put(ctx context.Context, path string, content []byte, token, message string) (string, error) {
	body, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.branch,
		SHA:     token,
	})
	if err != nil {
		return "", fmt.Errorf("remote: encode put: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPut, c.url(path), body)
	if err != nil {
		return "", &apperr.TransportError{Op: "put " + path, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return "", apperr.ErrNotFound
	case http.StatusConflict, http.StatusUnprocessableEntity:
		// Stale or missing sha for an existing path.
		return "", apperr.ErrVersionConflict
	default:
		return "", &apperr.TransportError{Op: "put " + path, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	var pr putResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", &apperr.TransportError{Op: "put " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return pr.Content.SHA, nil
}

// List returns the file and directory names inside dir, in API order.
func (c *Contents) List(ctx context.Context, dir string) ([]string, error) {
	url := c.url(dir)
	if c.branch != "" {
		url += "?ref=" + c.branch
	}
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &apperr.TransportError{Op: "list " + dir, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &apperr.TransportError{Op: "list " + dir, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	var items []contentsItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, &apperr.TransportError{Op: "list " + dir, Err: fmt.Errorf("decode response: %w", err)}
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return names, nil
}

// Ping probes connectivity with a minimal request. Any HTTP response,
// including an error status, proves the API is reachable; only a
// request-level failure reports offline.
func (c *Contents) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodHead, c.base+"/", nil)
	if err != nil {
		return &apperr.TransportError{Op: "ping", Err: err}
	}
	resp.Body.Close()
	return nil
}
