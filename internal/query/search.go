package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lazypower/constellation/internal/graph"
)

// SearchResult is one entity search hit.
type SearchResult struct {
	Node  graph.Node `json:"node"`
	Score float64    `json:"score"`
}

// SearchOpts controls entity search.
type SearchOpts struct {
	Limit int              // max results (default 20)
	Type  graph.EntityType // empty means any type
}

func (o SearchOpts) limit() int {
	if o.Limit <= 0 {
		return 20
	}
	return o.Limit
}

// Search matches q against node labels. An exact match scores 3, a word
// or label prefix 2 and any other substring 1. Weight adds at most 0.5,
// so frequent entities rank first within a tier.
func Search(s *graph.Store, q string, opts SearchOpts) []SearchResult {
	key := graph.Normalize(q)
	raw := strings.ToLower(strings.TrimSpace(q))
	if key == "" && raw == "" {
		return nil
	}

	var out []SearchResult
	for _, n := range s.Nodes() {
		if opts.Type != "" && n.Type != opts.Type {
			continue
		}
		tier := matchTier(n, key, raw)
		if tier == 0 {
			continue
		}
		out = append(out, SearchResult{Node: n, Score: tier + graph.Clamp01(float64(n.Weight)/100)/2})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	if len(out) > opts.limit() {
		out = out[:opts.limit()]
	}
	return out
}

func matchTier(n graph.Node, key, raw string) float64 {
	k := n.Key()
	label := strings.ToLower(n.Label)
	switch {
	case key != "" && k == key, raw != "" && label == raw:
		return 3
	case key != "" && (strings.HasPrefix(k, key) || strings.Contains(k, " "+key)):
		return 2
	case key != "" && strings.Contains(k, key), raw != "" && strings.Contains(label, raw):
		return 1
	}
	return 0
}

// Related returns the strongest neighbors of an entity. ref may be a node
// id or a free-form label.
func Related(s *graph.Store, ref string, limit int) ([]graph.Neighbor, error) {
	id, ok := s.Resolve(ref)
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", ref, graph.ErrNotFound)
	}
	if limit <= 0 {
		limit = maxNeighbors
	}
	return s.Neighbors(id, limit), nil
}
