package enrich

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/graph"
)

// MinInterval is the shortest time between two unforced passes.
const MinInterval = 5 * time.Minute

const day = 24 * time.Hour

// Option configures an Enricher.
type Option func(*Enricher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) { e.now = now }
}

// WithLogger sets the enricher logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Enricher) {
		if log != nil {
			e.log = log
		}
	}
}

// Enricher recomputes derived node and edge properties from signals.
type Enricher struct {
	classifier *Classifier
	now        func() time.Time
	log        *zap.Logger

	mu      sync.Mutex
	lastRun time.Time
}

// NewEnricher returns an Enricher. A nil classifier uses the built-in tables.
func NewEnricher(c *Classifier, opts ...Option) *Enricher {
	if c == nil {
		c = NewClassifier(nil)
	}
	e := &Enricher{classifier: c, now: time.Now, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run performs a full pass over s. Unless force is set, a pass within
// MinInterval of the previous one is skipped and Run returns false.
func (e *Enricher) Run(s *graph.Store, sig *Signals, force bool) bool {
	e.mu.Lock()
	now := e.now()
	if !force && !e.lastRun.IsZero() && now.Sub(e.lastRun) < MinInterval {
		e.mu.Unlock()
		return false
	}
	e.lastRun = now
	e.mu.Unlock()

	engagement := make(map[string]Engagement)
	var maxTotal int64
	for _, n := range s.Nodes() {
		if eng, ok := sig.Engagement(n.ID); ok {
			engagement[n.ID] = eng
			maxTotal = max(maxTotal, eng.TotalMs)
		}
	}

	s.UpdateNodes(func(n *graph.Node) {
		eng := engagement[n.ID]
		n.EngagementMs = eng.TotalMs
		n.SessionCount = eng.Sessions
		n.PrimaryContext = e.primaryContext(n)
		n.Role = inferRole(n, eng)
		n.EngagementTrend = inferTrend(n, eng, now)
		n.Salience = Salience(eng, maxTotal, n.LastSeen, now)
		if n.Type == graph.TypeSkill {
			n.Proficiency = Proficiency(eng.TotalMs, 100)
		}
	})

	s.UpdateEdges(func(ed *graph.Edge, src, dst *graph.Node) {
		ed.LastActive = src.LastSeen
		if dst.LastSeen.After(ed.LastActive) {
			ed.LastActive = dst.LastSeen
		}
		switch {
		case src.PrimaryContext != "" && src.PrimaryContext != graph.CategoryUnknown:
			ed.Context = src.PrimaryContext
		case dst.PrimaryContext != "" && dst.PrimaryContext != graph.CategoryUnknown:
			ed.Context = dst.PrimaryContext
		default:
			ed.Context = graph.CategoryUnknown
		}
	})

	nodes, edges := s.Len()
	e.log.Debug("enrichment pass", zap.Int("nodes", nodes), zap.Int("edges", edges))
	return true
}

// Salience blends engagement share, recency and frequency:
//
//	0.4·total/maxTotal + 0.3·exp(-days/14) + log2(sessions+1)/10 + 0.2·[recent>0]
//
// clamped to [0,1].
func Salience(eng Engagement, maxTotal int64, lastSeen, now time.Time) float64 {
	var share float64
	if maxTotal > 0 {
		share = float64(eng.TotalMs) / float64(maxTotal)
	}
	days := now.Sub(lastSeen).Hours() / 24
	if days < 0 || lastSeen.IsZero() {
		days = 0
	}
	v := 0.4*share + 0.3*math.Exp(-days/14) + math.Log2(float64(eng.Sessions)+1)/10
	if eng.RecentMs(now) > 0 {
		v += 0.2
	}
	return graph.Clamp01(v)
}

// Proficiency maps engagement to [0,1] on a log scale that saturates at
// capHours of engagement.
func Proficiency(totalMs int64, capHours float64) float64 {
	hours := float64(totalMs) / float64(time.Hour.Milliseconds())
	return math.Min(1, math.Log2(hours+1)/math.Log2(capHours))
}

// primaryContext votes over the node's contexts. Domain contexts count
// double, and later contexts win ties.
func (e *Enricher) primaryContext(n *graph.Node) graph.Category {
	votes := make(map[graph.Category]int)
	last := make(map[graph.Category]int)
	cast := func(i int, c graph.Category, url bool) {
		if c == graph.CategoryUnknown {
			return
		}
		w := 1
		if url {
			w = 2
		}
		votes[c] += w
		last[c] = i
	}
	for i, ctx := range n.Contexts {
		c, url := e.classifier.ClassifyContext(ctx)
		cast(i, c, url)
	}
	switch n.Type {
	case graph.TypeApp:
		cast(len(n.Contexts), e.classifier.ClassifyApp(n.Label), false)
	case graph.TypeContent:
		if isDomain(n.Label) {
			cast(len(n.Contexts), e.classifier.ClassifyURL(n.Label), true)
		}
	}

	best := graph.CategoryUnknown
	for c, v := range votes {
		if best == graph.CategoryUnknown || v > votes[best] || (v == votes[best] && last[c] > last[best]) {
			best = c
		}
	}
	return best
}

func inferRole(n *graph.Node, eng Engagement) graph.Role {
	switch n.Type {
	case graph.TypePerson:
		return graph.RoleCollaborator
	case graph.TypeProject, graph.TypeGoal:
		if eng.Sessions >= 3 {
			return graph.RoleCreator
		}
		return graph.RoleCollaborator
	case graph.TypeSkill:
		return graph.RoleLearner
	case graph.TypeTopic, graph.TypePlace:
		if n.PrimaryContext == graph.CategoryLearning {
			return graph.RoleLearner
		}
	case graph.TypeApp:
		if n.PrimaryContext == graph.CategoryWork && eng.Sessions >= 10 {
			return graph.RoleCreator
		}
	}
	if eng.Sessions >= 3 {
		return graph.RoleConsumer
	}
	return graph.RoleViewer
}

func inferTrend(n *graph.Node, eng Engagement, now time.Time) graph.Trend {
	switch {
	case now.Sub(n.FirstSeen) < 2*day:
		return graph.TrendNew
	case now.Sub(n.LastSeen) > 7*day:
		return graph.TrendDecreasing
	case eng.TotalMs == 0:
		return graph.TrendStable
	}
	ratio := float64(eng.RecentMs(now)) / float64(eng.TotalMs)
	switch {
	case ratio > 0.6:
		return graph.TrendIncreasing
	case ratio < 0.2:
		return graph.TrendDecreasing
	}
	return graph.TrendStable
}
