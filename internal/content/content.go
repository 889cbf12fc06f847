// Package content fetches exercise definition documents from the
// remote content source. The documents are treated as opaque JSON; the
// only fields this package understands are the accent, content type
// and id needed to derive recording keys. Exercise semantics stay with
// the UI.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vocalise-app/vocalise/internal/recordkey"
)

// Ref identifies one recordable content item inside a document.
type Ref struct {
	ID     string
	Accent recordkey.Accent
	Domain recordkey.Domain
}

// Key derives the storage key for this item, optionally narrowed to a
// sub-question.
func (r Ref) Key(opts ...recordkey.Option) string {
	return recordkey.Key(r.Accent, r.Domain, r.ID, opts...)
}

// Client fetches content documents over HTTP.
type Client struct {
	base *url.URL
	hc   *http.Client
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("content: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("content: base url %q must be http(s)", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base: u,
		hc:   &http.Client{Timeout: timeout},
	}, nil
}

// Document fetches the JSON document at name relative to the base URL
// and returns its raw bytes. Non-2xx responses and non-JSON payloads
// are errors.
func (c *Client) Document(ctx context.Context, name string) (json.RawMessage, error) {
	ref := *c.base
	ref.Path = strings.TrimSuffix(ref.Path, "/") + "/" + strings.TrimPrefix(name, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("content: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content: fetch %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("content: fetch %q: unexpected status %s", name, resp.Status)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("content: decode %q: %w", name, err)
	}
	return raw, nil
}

// Refs fetches the document at name and extracts every recordable item
// it mentions. Objects anywhere in the document that carry id, accent
// and type fields become refs; everything else is ignored.
func (c *Client) Refs(ctx context.Context, name string) ([]Ref, error) {
	raw, err := c.Document(ctx, name)
	if err != nil {
		return nil, err
	}
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("content: decode %q: %w", name, err)
	}
	var refs []Ref
	walk(root, &refs)
	return refs, nil
}

// walk recursively collects refs from decoded JSON.
func walk(v any, out *[]Ref) {
	switch node := v.(type) {
	case map[string]any:
		if r, ok := refFrom(node); ok {
			*out = append(*out, r)
		}
		for _, child := range node {
			walk(child, out)
		}
	case []any:
		for _, child := range node {
			walk(child, out)
		}
	}
}

func refFrom(node map[string]any) (Ref, bool) {
	id, _ := node["id"].(string)
	if id == "" {
		// Some documents carry numeric ids.
		if n, ok := node["id"].(float64); ok {
			id = strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	accentStr, _ := node["accent"].(string)
	typeStr, _ := node["type"].(string)
	if id == "" || accentStr == "" || typeStr == "" {
		return Ref{}, false
	}

	accent := recordkey.Accent(strings.ToLower(accentStr))
	domain := recordkey.Domain(strings.ToLower(typeStr))
	if !accent.IsValid() || !domain.IsValid() {
		return Ref{}, false
	}
	return Ref{ID: id, Accent: accent, Domain: domain}, true
}
