package maintain

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/memsearch"
)

const (
	maxCrossRefNodes = 25
	crossRefHits     = 5
	// Contexts shared by more entities than this are too generic to link.
	maxClusterSize = 5
)

// CrossRefResult reports one cross-reference pass.
type CrossRefResult struct {
	Queried  int            `json:"queried"`
	Contexts int            `json:"contexts"` // contexts that produced edges
	Edges    int            `json:"edges"`
	Outcomes map[string]int `json:"outcomes"`
}

// CrossRef links entities that turn up in the same external memory
// context.
type CrossRef struct {
	search  memsearch.Client
	limiter *rate.Limiter
	timeout time.Duration
	log     *zap.Logger
}

// NewCrossRef returns a CrossRef that waits delay between searches.
func NewCrossRef(search memsearch.Client, delay, timeout time.Duration, log *zap.Logger) *CrossRef {
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &CrossRef{
		search:  search,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
		log:     log,
	}
}

// topVerified returns the most salient verified nodes.
func topVerified(s *graph.Store, n int) []graph.Node {
	var out []graph.Node
	for _, node := range s.Nodes() {
		if node.Verified {
			out = append(out, node)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Salience != out[j].Salience {
			return out[i].Salience > out[j].Salience
		}
		return out[i].Weight > out[j].Weight
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Run queries the search service once per top entity and links every
// pair of entities sharing a result context. A failed search only loses
// that entity's results; a cancelled ctx ends the pass with what was
// gathered so far.
func (c *CrossRef) Run(ctx context.Context, s *graph.Store) (CrossRefResult, error) {
	res := CrossRefResult{Outcomes: make(map[string]int)}
	members := make(map[string]map[string]bool)

	for _, n := range topVerified(s, maxCrossRefNodes) {
		if err := c.limiter.Wait(ctx); err != nil {
			c.log.Debug("cross-reference interrupted", zap.Error(err))
			break
		}
		records, outcome := c.query(ctx, n.Label)
		res.Queried++
		res.Outcomes[outcome]++
		for _, r := range records {
			g := r.Group()
			if g == "" {
				continue
			}
			if members[g] == nil {
				members[g] = make(map[string]bool)
			}
			members[g][n.ID] = true
		}
	}

	groups := make([]string, 0, len(members))
	for g := range members {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		ids := make([]string, 0, len(members[g]))
		for id := range members[g] {
			ids = append(ids, id)
		}
		if len(ids) < 2 || len(ids) > maxClusterSize {
			continue
		}
		sort.Strings(ids)
		linked := false
		for i := range ids {
			for j := i + 1; j < len(ids); j++ {
				if _, ok := s.Link(ids[i], ids[j], graph.RelationCrossContext); ok {
					res.Edges++
					linked = true
				}
			}
		}
		if linked {
			res.Contexts++
		}
	}

	c.log.Info("cross-reference applied",
		zap.Int("queried", res.Queried),
		zap.Int("contexts", res.Contexts),
		zap.Int("edges", res.Edges))
	return res, ctx.Err()
}

func (c *CrossRef) query(ctx context.Context, text string) ([]memsearch.Record, string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	records, err := c.search.Search(ctx, memsearch.Query{Text: text, Limit: crossRefHits})
	switch {
	case err == nil:
		return records, "ok"
	case ctx.Err() != nil:
		c.log.Warn("search timed out", zap.String("query", text), zap.Error(err))
		return nil, "timeout"
	default:
		c.log.Warn("search failed", zap.String("query", text), zap.Error(err))
		return nil, "error"
	}
}
