package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/graph"
)

// Bounds on detail panels.
const (
	maxNeighbors     = 20
	maxActivityHits  = 8
	maxScreenHits    = 5
	maxClipboardHits = 5
	maxMusicHits     = 5
)

// Mentions are feed records that mention an entity, most recent first.
type Mentions struct {
	Activities []activity.Entry    `json:"activities"`
	Screen     []activity.Snapshot `json:"screen"`
	Clipboard  []activity.Clip     `json:"clipboard"`
	Music      []activity.Track    `json:"music"`
}

// NodeDetail is a single node with its strongest neighbors and mentions.
type NodeDetail struct {
	Node      graph.Node       `json:"node"`
	Neighbors []graph.Neighbor `json:"neighbors"`
	Mentions  Mentions         `json:"mentions"`
}

// EdgeDetail is a single edge with both endpoints.
type EdgeDetail struct {
	Edge      graph.Edge       `json:"edge"`
	Source    graph.Node       `json:"source"`
	Target    graph.Node       `json:"target"`
	Neighbors []graph.Neighbor `json:"neighbors"`
	Mentions  Mentions         `json:"mentions"`
}

// DescribeNode returns the detail panel for id. feed may be nil.
func DescribeNode(s *graph.Store, feed activity.Source, id string) (NodeDetail, error) {
	n, ok := s.Node(id)
	if !ok {
		return NodeDetail{}, fmt.Errorf("node %q: %w", id, graph.ErrNotFound)
	}
	return NodeDetail{
		Node:      n,
		Neighbors: s.Neighbors(id, maxNeighbors),
		Mentions:  FindMentions(feed, n.Label),
	}, nil
}

// DescribeEdge returns the detail panel for an edge key. Mentions are
// records naming both endpoints, or either one when none name both.
func DescribeEdge(s *graph.Store, feed activity.Source, key string) (EdgeDetail, error) {
	e, ok := s.Edge(key)
	if !ok {
		return EdgeDetail{}, fmt.Errorf("edge %q: %w", key, graph.ErrNotFound)
	}
	src, ok1 := s.Node(e.Source)
	dst, ok2 := s.Node(e.Target)
	if !ok1 || !ok2 {
		return EdgeDetail{}, fmt.Errorf("edge %q endpoints: %w", key, graph.ErrNotFound)
	}

	var neighbors []graph.Neighbor
	for _, end := range []string{e.Source, e.Target} {
		for _, nb := range s.Neighbors(end, 0) {
			if nb.Edge.Key != key {
				neighbors = append(neighbors, nb)
			}
		}
	}
	sort.SliceStable(neighbors, func(i, j int) bool { return neighbors[i].Edge.Weight > neighbors[j].Edge.Weight })
	if len(neighbors) > maxNeighbors {
		neighbors = neighbors[:maxNeighbors]
	}

	m := FindMentions(feed, src.Label, dst.Label)
	if m.empty() {
		m = FindMentions(feed, src.Label)
		other := FindMentions(feed, dst.Label)
		m.Activities = mergeRecent(m.Activities, other.Activities, func(e activity.Entry) int64 { return e.Timestamp.UnixNano() }, maxActivityHits)
		m.Screen = mergeRecent(m.Screen, other.Screen, func(e activity.Snapshot) int64 { return e.Timestamp.UnixNano() }, maxScreenHits)
		m.Clipboard = mergeRecent(m.Clipboard, other.Clipboard, func(e activity.Clip) int64 { return e.Timestamp.UnixNano() }, maxClipboardHits)
		m.Music = mergeRecent(m.Music, other.Music, func(e activity.Track) int64 { return e.Timestamp.UnixNano() }, maxMusicHits)
	}
	return EdgeDetail{Edge: e, Source: src, Target: dst, Neighbors: neighbors, Mentions: m}, nil
}

func (m Mentions) empty() bool {
	return len(m.Activities)+len(m.Screen)+len(m.Clipboard)+len(m.Music) == 0
}

// FindMentions scans the feed newest first for records containing every
// label, case-insensitively.
func FindMentions(feed activity.Source, labels ...string) Mentions {
	m := Mentions{
		Activities: []activity.Entry{},
		Screen:     []activity.Snapshot{},
		Clipboard:  []activity.Clip{},
		Music:      []activity.Track{},
	}
	if feed == nil || len(labels) == 0 {
		return m
	}
	needles := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.ToLower(graph.Bare(l)); l != "" {
			needles = append(needles, l)
		}
	}
	if len(needles) == 0 {
		return m
	}

	m.Activities = newestMatching(feed.Activities(), maxActivityHits, needles, func(e activity.Entry) []string {
		return []string{e.App, e.Title, e.URL, e.Summary}
	})
	m.Screen = newestMatching(feed.Snapshots(), maxScreenHits, needles, func(s activity.Snapshot) []string {
		return []string{s.Title, s.Text, s.Summary}
	})
	m.Clipboard = newestMatching(feed.Clipboard(), maxClipboardHits, needles, func(c activity.Clip) []string {
		return []string{c.Text}
	})
	m.Music = newestMatching(feed.Music(), maxMusicHits, needles, func(t activity.Track) []string {
		return []string{t.Title, t.Artist, t.Album}
	})
	return m
}

// newestMatching walks an oldest-first slice backwards.
func newestMatching[T any](items []T, limit int, needles []string, fields func(T) []string) []T {
	out := []T{}
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		if containsAll(strings.ToLower(strings.Join(fields(items[i]), "\n")), needles) {
			out = append(out, items[i])
		}
	}
	return out
}

func containsAll(haystack string, needles []string) bool {
	for _, n := range needles {
		if !strings.Contains(haystack, n) {
			return false
		}
	}
	return true
}

// mergeRecent merges two newest-first slices, keeping limit items.
func mergeRecent[T any](a, b []T, ts func(T) int64, limit int) []T {
	out := make([]T, 0, min(limit, len(a)+len(b)))
	for len(out) < limit && (len(a) > 0 || len(b) > 0) {
		if len(b) == 0 || (len(a) > 0 && ts(a[0]) >= ts(b[0])) {
			out = append(out, a[0])
			a = a[1:]
		} else {
			out = append(out, b[0])
			b = b[1:]
		}
	}
	return out
}
