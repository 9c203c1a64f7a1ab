package graph

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by lookups that reference a missing node or edge.
var ErrNotFound = errors.New("graph: not found")

const maxContexts = 10

// Occurrence describes where a mention of an entity came from.
type Occurrence struct {
	Context string // source context, e.g. app name or domain
	Hint    string // opaque co-occurrence hint; mentions sharing one are linked
}

// Store holds the canonical node and edge maps. All methods are safe for
// concurrent use; each call is atomic with respect to the others.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Edge
	hints *hintWindow

	now func() time.Time
	log *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		hints: newHintWindow(hintWindowSize),
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time { return s.now() }

// AddEntity records one occurrence of label as type t and returns the
// canonical id it resolved to. It returns false when the label or type is
// rejected.
func (s *Store) AddEntity(label string, t EntityType, occ Occurrence) (string, bool) {
	if !validTypes[t] {
		return "", false
	}
	key := Normalize(label)
	if !Acceptable(key) {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := s.canonicalLocked(key, t)
	n, ok := s.nodes[id]
	if !ok {
		n = &Node{
			ID:        id,
			Label:     cleanLabel(label),
			Type:      t,
			FirstSeen: now,
		}
		s.nodes[id] = n
		s.log.Debug("node created", zap.String("id", id))
	}
	n.Weight++
	n.LastSeen = now
	if occ.Context != "" {
		n.Contexts = appendContext(n.Contexts, occ.Context)
	}

	if occ.Hint != "" {
		for _, other := range s.hints.record(occ.Hint, id) {
			if _, alive := s.nodes[other]; !alive {
				continue
			}
			s.strengthenLocked(id, other, "", now)
		}
	}
	return id, true
}

// canonicalLocked resolves key to an existing compatible node id, or
// returns the id a new node would get.
func (s *Store) canonicalLocked(key string, t EntityType) string {
	for ct := range validTypes {
		if !compatible(t, ct) {
			continue
		}
		if _, ok := s.nodes[string(ct)+":"+key]; ok {
			return string(ct) + ":" + key
		}
	}

	var best *Node
	for _, n := range s.nodes {
		if !compatible(t, n.Type) || !fuzzyMatch(key, n.Key(), t) {
			continue
		}
		if best == nil || betterFuzzy(n, best) {
			best = n
		}
	}
	if best != nil {
		return best.ID
	}
	return string(t) + ":" + key
}

// betterFuzzy prefers the longest label, then the heavier node, then the
// lower id so resolution does not depend on map order.
func betterFuzzy(a, b *Node) bool {
	if la, lb := len(a.Key()), len(b.Key()); la != lb {
		return la > lb
	}
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.ID < b.ID
}

// AddRelation strengthens the edge between two existing entities, tagging
// it with relation if it has none yet. Labels resolve exact-then-prefix;
// no nodes are created.
func (s *Store) AddRelation(from, to, relation string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.resolveLocked(from)
	if !ok {
		return "", false
	}
	b, ok := s.resolveLocked(to)
	if !ok || a == b {
		return "", false
	}
	return s.strengthenLocked(a, b, relation, s.now()), true
}

// Link strengthens the edge between two node ids if both still exist.
func (s *Store) Link(a, b, relation string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a == b || s.nodes[a] == nil || s.nodes[b] == nil {
		return "", false
	}
	return s.strengthenLocked(a, b, relation, s.now()), true
}

func (s *Store) strengthenLocked(a, b, relation string, now time.Time) string {
	key := EdgeKey(a, b)
	e, ok := s.edges[key]
	if !ok {
		src, dst, _ := SplitEdgeKey(key)
		e = &Edge{Key: key, Source: src, Target: dst}
		s.edges[key] = e
	}
	e.Weight++
	e.UpdatedAt = now
	if e.Relation == "" && relation != "" {
		e.Relation = relation
	}
	return key
}

// Resolve maps a free-form label to an existing node id: exact normalized
// match first, then the heaviest node whose key starts with it.
func (s *Store) Resolve(label string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(label)
}

func (s *Store) resolveLocked(label string) (string, bool) {
	if _, ok := s.nodes[label]; ok {
		return label, true
	}
	key := Normalize(label)
	if key == "" {
		return "", false
	}

	var exact, prefix *Node
	for _, n := range s.nodes {
		k := n.Key()
		switch {
		case k == key:
			if exact == nil || heavier(n, exact) {
				exact = n
			}
		case len(key) >= minFuzzyLen && strings.HasPrefix(k, key):
			if prefix == nil || heavier(n, prefix) {
				prefix = n
			}
		}
	}
	if exact != nil {
		return exact.ID, true
	}
	if prefix != nil {
		return prefix.ID, true
	}
	return "", false
}

func heavier(a, b *Node) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.ID < b.ID
}

// PruneOrphanedEdges removes edges with a missing endpoint or a self-loop.
func (s *Store) PruneOrphanedEdges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked()
}

func (s *Store) pruneLocked() int {
	removed := 0
	for key, e := range s.edges {
		if e.Source == e.Target || s.nodes[e.Source] == nil || s.nodes[e.Target] == nil {
			delete(s.edges, key)
			removed++
		}
	}
	return removed
}

// Reset clears all nodes, edges and co-occurrence history.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*Node)
	s.edges = make(map[string]*Edge)
	s.hints = newHintWindow(hintWindowSize)
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Edge returns a copy of the edge with the given key.
func (s *Store) Edge(key string) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[key]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Nodes returns copies of all nodes ordered by id.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns copies of all edges ordered by key.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	out := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, *e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the node and edge counts.
func (s *Store) Len() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.edges)
}

// Neighbor is an adjacent node and the edge that connects it.
type Neighbor struct {
	Node Node `json:"node"`
	Edge Edge `json:"edge"`
}

// Neighbors returns up to limit neighbors of id, strongest edge first.
// A limit of zero or less means no limit.
func (s *Store) Neighbors(id string, limit int) []Neighbor {
	s.mu.RLock()
	var out []Neighbor
	for _, e := range s.edges {
		if e.Source != id && e.Target != id {
			continue
		}
		other, ok := s.nodes[e.Other(id)]
		if !ok {
			continue
		}
		out = append(out, Neighbor{Node: other.clone(), Edge: *e})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Edge.Weight != out[j].Edge.Weight {
			return out[i].Edge.Weight > out[j].Edge.Weight
		}
		return out[i].Edge.Key < out[j].Edge.Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UpdateNodes calls fn on every node under the write lock. Salience is
// clamped to [0,1] afterwards.
func (s *Store) UpdateNodes(fn func(n *Node)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		fn(n)
		n.Salience = Clamp01(n.Salience)
	}
}

// UpdateEdges calls fn on every edge with its endpoints under the write lock.
// fn must not change the edge key or endpoints.
func (s *Store) UpdateEdges(fn func(e *Edge, source, target *Node)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.edges {
		src, dst := s.nodes[e.Source], s.nodes[e.Target]
		if src == nil || dst == nil {
			continue
		}
		fn(e, src, dst)
	}
}

// Clamp01 limits v to [0,1], mapping NaN to 0.
func Clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func appendContext(contexts []string, c string) []string {
	for _, existing := range contexts {
		if existing == c {
			return contexts
		}
	}
	contexts = append(contexts, c)
	if len(contexts) > maxContexts {
		contexts = contexts[len(contexts)-maxContexts:]
	}
	return contexts
}

func cleanLabel(label string) string {
	return spaceRe.ReplaceAllString(strings.TrimSpace(label), " ")
}
