package graph

import (
	"time"

	"go.uber.org/zap"
)

// Merge folds sources into target: weights are summed, contexts unioned,
// the seen window widened and every edge re-keyed onto target. The target
// takes the label of whichever node had the highest weight and is marked
// verified. Missing sources are skipped; it returns false when target is
// gone or nothing was merged.
func (s *Store) Merge(target string, sources []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.nodes[target]
	if !ok {
		return false
	}

	absorbed := make(map[string]bool)
	bestWeight := t.Weight
	for _, id := range sources {
		src, ok := s.nodes[id]
		if !ok || id == target || absorbed[id] {
			continue
		}
		absorbed[id] = true

		if src.Weight > bestWeight {
			bestWeight = src.Weight
			t.Label = src.Label
		}
		t.Weight += src.Weight
		for _, c := range src.Contexts {
			t.Contexts = appendContext(t.Contexts, c)
		}
		if src.FirstSeen.Before(t.FirstSeen) {
			t.FirstSeen = src.FirstSeen
		}
		if src.LastSeen.After(t.LastSeen) {
			t.LastSeen = src.LastSeen
		}
		delete(s.nodes, id)
	}
	if len(absorbed) == 0 {
		return false
	}
	t.Verified = true

	for key, e := range s.edges {
		if !absorbed[e.Source] && !absorbed[e.Target] {
			continue
		}
		delete(s.edges, key)

		a, b := e.Source, e.Target
		if absorbed[a] {
			a = target
		}
		if absorbed[b] {
			b = target
		}
		if a == b {
			continue
		}
		s.absorbEdgeLocked(a, b, e)
	}
	s.hints.rename(absorbed, target)
	s.pruneLocked()

	s.log.Debug("merged nodes", zap.String("target", target), zap.Int("sources", len(absorbed)))
	return true
}

func (s *Store) absorbEdgeLocked(a, b string, old *Edge) {
	key := EdgeKey(a, b)
	e, ok := s.edges[key]
	if !ok {
		src, dst, _ := SplitEdgeKey(key)
		s.edges[key] = &Edge{
			Key:        key,
			Source:     src,
			Target:     dst,
			Weight:     old.Weight,
			Relation:   old.Relation,
			Context:    old.Context,
			LastActive: old.LastActive,
			UpdatedAt:  old.UpdatedAt,
		}
		return
	}
	e.Weight += old.Weight
	if e.Relation == "" {
		e.Relation = old.Relation
	}
	if old.UpdatedAt.After(e.UpdatedAt) {
		e.UpdatedAt = old.UpdatedAt
	}
	if old.LastActive.After(e.LastActive) {
		e.LastActive = old.LastActive
	}
}

// RemoveNode deletes a node and its edges. It reports whether the node existed.
func (s *Store) RemoveNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return false
	}
	delete(s.nodes, id)
	s.hints.drop(id)
	s.pruneLocked()
	return true
}

// SetVerified marks a node as confirmed signal. It reports whether the node existed.
func (s *Store) SetVerified(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	n.Verified = true
	return true
}

// DecayPolicy sets the thresholds for Decay.
type DecayPolicy struct {
	NodeStaleAfter      time.Duration // nodes not seen for longer are candidates
	UnverifiedMinWeight int           // stale unverified nodes below this weight are removed
	VerifiedMinWeight   int           // stale verified nodes below this weight are removed
	EdgeStaleAfter      time.Duration // edges not strengthened for longer are candidates
	EdgeMinWeight       int           // stale edges at or below this weight are removed
}

// DefaultDecayPolicy returns the standard decay thresholds.
func DefaultDecayPolicy() DecayPolicy {
	return DecayPolicy{
		NodeStaleAfter:      7 * 24 * time.Hour,
		UnverifiedMinWeight: 2,
		VerifiedMinWeight:   1,
		EdgeStaleAfter:      30 * 24 * time.Hour,
		EdgeMinWeight:       1,
	}
}

// DecayResult reports what a decay pass removed.
type DecayResult struct {
	Nodes       []string `json:"nodes"`
	Edges       int      `json:"edges"`
	OrphanEdges int      `json:"orphanEdges"`
}

// Decay removes stale low-weight nodes and edges, then prunes orphans.
func (s *Store) Decay(p DecayPolicy) DecayResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var res DecayResult
	for id, n := range s.nodes {
		if now.Sub(n.LastSeen) <= p.NodeStaleAfter {
			continue
		}
		floor := p.UnverifiedMinWeight
		if n.Verified {
			floor = p.VerifiedMinWeight
		}
		if n.Weight < floor {
			delete(s.nodes, id)
			s.hints.drop(id)
			res.Nodes = append(res.Nodes, id)
		}
	}

	for key, e := range s.edges {
		if e.Weight <= p.EdgeMinWeight && now.Sub(e.UpdatedAt) > p.EdgeStaleAfter {
			delete(s.edges, key)
			res.Edges++
		}
	}
	res.OrphanEdges = s.pruneLocked()
	return res
}
