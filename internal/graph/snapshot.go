package graph

import "time"

// EdgeRow is the persisted shape of an edge.
type EdgeRow struct {
	Key       string    `json:"key"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Weight    int       `json:"weight"`
	Relation  string    `json:"relation,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot is a serializable copy of the graph.
type Snapshot struct {
	Nodes []Node    `json:"nodes"`
	Edges []EdgeRow `json:"edges"`
}

// Snapshot returns a consistent copy of all nodes and edges.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Nodes: make([]Node, 0, len(s.nodes)),
		Edges: make([]EdgeRow, 0, len(s.edges)),
	}
	for _, n := range s.nodes {
		snap.Nodes = append(snap.Nodes, n.clone())
	}
	for _, e := range s.edges {
		snap.Edges = append(snap.Edges, EdgeRow{
			Key:       e.Key,
			Source:    e.Source,
			Target:    e.Target,
			Weight:    e.Weight,
			Relation:  e.Relation,
			UpdatedAt: e.UpdatedAt,
		})
	}
	return snap
}

// Restore replaces the graph with snap. Nodes with an unknown type or empty
// id are dropped, as are edges whose endpoints did not survive. Edge keys
// are recomputed from their endpoints. It returns the restored counts.
func (s *Store) Restore(snap Snapshot) (nodes, edges int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.nodes = make(map[string]*Node, len(snap.Nodes))
	s.edges = make(map[string]*Edge, len(snap.Edges))
	s.hints = newHintWindow(hintWindowSize)

	for i := range snap.Nodes {
		n := snap.Nodes[i].clone()
		if n.ID == "" || !validTypes[n.Type] {
			continue
		}
		if n.Weight < 1 {
			n.Weight = 1
		}
		n.Salience = Clamp01(n.Salience)
		s.nodes[n.ID] = &n
	}
	for _, row := range snap.Edges {
		if row.Source == row.Target || s.nodes[row.Source] == nil || s.nodes[row.Target] == nil {
			continue
		}
		key := EdgeKey(row.Source, row.Target)
		src, dst, _ := SplitEdgeKey(key)
		updated := row.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		if e, ok := s.edges[key]; ok {
			e.Weight += row.Weight
			continue
		}
		s.edges[key] = &Edge{
			Key:       key,
			Source:    src,
			Target:    dst,
			Weight:    row.Weight,
			Relation:  row.Relation,
			UpdatedAt: updated,
		}
	}
	return len(s.nodes), len(s.edges)
}
