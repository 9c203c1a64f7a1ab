package memsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Query is one semantic-memory search.
type Query struct {
	Text  string   `json:"query"`
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// Record is one search hit. ContextID groups hits that came from the same
// conversation or document.
type Record struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Content   string `json:"content,omitempty"`
	ContextID string `json:"context_id,omitempty"`
}

// Group returns the id used to cluster this record: its context id, or its
// own id when it has none.
func (r Record) Group() string {
	if r.ContextID != "" {
		return r.ContextID
	}
	return r.ID
}

// Client searches an external semantic memory.
type Client interface {
	Search(ctx context.Context, q Query) ([]Record, error)
}

// Nop is a Client that never finds anything.
type Nop struct{}

func (Nop) Search(context.Context, Query) ([]Record, error) { return nil, nil }

// HTTPClient POSTs queries as JSON to a search endpoint.
type HTTPClient struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPClient creates a client for the search service at url.
func NewHTTPClient(url, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Search sends q and decodes either {"results":[...]} or a bare array.
func (h *HTTPClient) Search(ctx context.Context, q Query) ([]Record, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.url+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search api status %d: %s", resp.StatusCode, respBody)
	}

	trimmed := bytes.TrimSpace(respBody)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return records, nil
	}
	var wrapped struct {
		Results []Record `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return wrapped.Results, nil
}

// Cached memoizes successful searches for ttl. Failures are not cached.
type Cached struct {
	next  Client
	cache *cache.Cache
}

// NewCached wraps next with a TTL cache.
func NewCached(next Client, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *Cached) Search(ctx context.Context, q Query) ([]Record, error) {
	key := cacheKey(q)
	if v, ok := c.cache.Get(key); ok {
		return v.([]Record), nil
	}
	records, err := c.next.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, records, cache.DefaultExpiration)
	return records, nil
}

// Flush empties the cache.
func (c *Cached) Flush() { c.cache.Flush() }

func cacheKey(q Query) string {
	return fmt.Sprintf("%s\x00%s\x00%d", strings.ToLower(strings.TrimSpace(q.Text)), strings.Join(q.Tags, ","), q.Limit)
}
