// Package query holds the read-only projections served to the UI: the
// bounded graph view, node and edge details, search and timelines. Nothing
// here mutates the store.
package query

import (
	"sort"
	"time"

	"github.com/lazypower/constellation/internal/graph"
)

const (
	defaultViewLimit = 100
	fallbackViewSize = 30
)

// ViewOptions bounds a graph view.
type ViewOptions struct {
	Limit         int       // max nodes before the connectivity filter (default 100)
	MinEdgeWeight int       // edges lighter than this are dropped
	Now           time.Time // zero means the store clock
}

func (o ViewOptions) limit() int {
	if o.Limit <= 0 {
		return defaultViewLimit
	}
	return o.Limit
}

// ScoredNode is a node with its view score.
type ScoredNode struct {
	graph.Node
	Score float64 `json:"score"`
}

// View is a bounded subgraph for display.
type View struct {
	Nodes []ScoredNode `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
	Total int          `json:"total"` // nodes in the whole graph
}

// Score ranks a node for display:
// weight × (3 if verified) × max(1, contexts) × recency boost.
func Score(n graph.Node, now time.Time) float64 {
	v := float64(n.Weight)
	if n.Verified {
		v *= 3
	}
	v *= float64(max(1, len(n.Contexts)))
	return v * recencyBoost(n.LastSeen, now)
}

func recencyBoost(lastSeen, now time.Time) float64 {
	age := now.Sub(lastSeen)
	switch {
	case age <= time.Hour:
		return 2
	case age <= 24*time.Hour:
		return 1.5
	case age <= 7*24*time.Hour:
		return 1.2
	}
	return 1
}

// GraphView returns the top-scoring nodes that stay connected by at least
// one edge of sufficient weight. When no edge survives it falls back to
// the plain top 30 so the view is never empty for a non-empty graph.
func GraphView(s *graph.Store, opt ViewOptions) View {
	now := opt.Now
	if now.IsZero() {
		now = s.Now()
	}

	all := s.Nodes()
	ranked := make([]ScoredNode, len(all))
	for i, n := range all {
		ranked[i] = ScoredNode{Node: n, Score: Score(n, now)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	top := ranked[:min(len(ranked), opt.limit())]

	in := make(map[string]bool, len(top))
	for _, n := range top {
		in[n.ID] = true
	}
	connected := make(map[string]bool)
	var edges []graph.Edge
	for _, e := range s.Edges() {
		if e.Weight < opt.MinEdgeWeight || !in[e.Source] || !in[e.Target] {
			continue
		}
		edges = append(edges, e)
		connected[e.Source] = true
		connected[e.Target] = true
	}

	v := View{Total: len(all), Edges: edges}
	if len(edges) == 0 {
		v.Nodes = top[:min(len(top), fallbackViewSize)]
		v.Edges = []graph.Edge{}
		return v
	}
	for _, n := range top {
		if connected[n.ID] {
			v.Nodes = append(v.Nodes, n)
		}
	}
	return v
}
