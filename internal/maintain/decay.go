package maintain

import (
	"github.com/lazypower/constellation/internal/enrich"
	"github.com/lazypower/constellation/internal/graph"
)

// Decay removes stale low-weight nodes and edges from s under policy and
// drops the engagement signals of every removed node.
//
// Nodes not seen for NodeStaleAfter go when their weight is under the
// verified-aware floor; edges at or below EdgeMinWeight go when they have
// not been strengthened for EdgeStaleAfter. Orphaned edges are pruned last.
func Decay(s *graph.Store, sig *enrich.Signals, policy graph.DecayPolicy) graph.DecayResult {
	res := s.Decay(policy)
	if sig != nil && len(res.Nodes) > 0 {
		sig.Forget(res.Nodes...)
	}
	return res
}
