package maintain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/constellation/internal/enrich"
	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/llm"
	"github.com/lazypower/constellation/internal/memsearch"
	"github.com/lazypower/constellation/internal/metrics"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testStore(t *testing.T) (*graph.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	return graph.New(graph.WithClock(clock.Now)), clock
}

func mustAdd(t *testing.T, s *graph.Store, label string, typ graph.EntityType) string {
	t.Helper()
	id, ok := s.AddEntity(label, typ, graph.Occurrence{Context: "Safari"})
	require.True(t, ok, label)
	return id
}

type fakeSearch struct {
	mu      sync.Mutex
	hits    map[string][]memsearch.Record
	fail    map[string]bool
	queries []string
}

func (f *fakeSearch) Search(ctx context.Context, q memsearch.Query) ([]memsearch.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q.Text)
	if f.fail[q.Text] {
		return nil, errors.New("search unavailable")
	}
	return f.hits[q.Text], nil
}

func TestDecayForgetsSignals(t *testing.T) {
	s, clock := testStore(t)
	sig := enrich.NewSignals(clock.Now)
	old := mustAdd(t, s, "Lorem", graph.TypeTopic)
	sig.RecordEngagement(old, 1000)

	clock.Advance(10 * 24 * time.Hour)
	fresh := mustAdd(t, s, "Ipsum", graph.TypeTopic)

	res := Decay(s, sig, graph.DefaultDecayPolicy())
	assert.Equal(t, []string{old}, res.Nodes)
	_, ok := s.Node(fresh)
	assert.True(t, ok)
	_, ok = sig.Engagement(old)
	assert.False(t, ok)
}

// cleanupFixture builds a store with four cleanup candidates, one app and
// one verified node.
func cleanupFixture(t *testing.T) (*graph.Store, *enrich.Signals) {
	t.Helper()
	s, clock := testStore(t)
	sig := enrich.NewSignals(clock.Now)
	mustAdd(t, s, "golang", graph.TypeTopic)
	mustAdd(t, s, "k8s", graph.TypeTopic)
	mustAdd(t, s, "Kubernetes", graph.TypeTopic)
	mustAdd(t, s, "Kubernetes", graph.TypeTopic)
	mustAdd(t, s, "Submit", graph.TypeTopic)
	mustAdd(t, s, "Slack", graph.TypeApp)
	rust := mustAdd(t, s, "Rust", graph.TypeTopic)
	require.True(t, s.SetVerified(rust))

	sig.RecordEngagement("topic:submit", 100)
	sig.RecordEngagement("topic:k8s", 200)
	sig.RecordEngagement("topic:kubernetes", 300)
	return s, sig
}

func TestCleanerAppliesClassification(t *testing.T) {
	s, sig := cleanupFixture(t)
	client := llm.Text("Sure! ```json\n" + `{
		"keep": ["topic:golang"],
		"remove": ["Submit", "app:slack", "topic:ghost"],
		"merge": [{"target": "topic:kubernetes", "sources": ["topic:k8s"]}]
	}` + "\n```")

	res, err := NewCleaner(client, sig, time.Second, nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Candidates: 4, Kept: 1, Removed: 1, Merged: 1, Ignored: 2, Outcome: "ok"}, res)

	prompt := client.Calls[0].Messages[0].Content
	assert.Contains(t, prompt, "topic:submit")
	assert.NotContains(t, prompt, "app:slack")
	assert.NotContains(t, prompt, "topic:rust")

	golang, _ := s.Node("topic:golang")
	assert.True(t, golang.Verified)
	_, ok := s.Node("topic:submit")
	assert.False(t, ok)
	_, ok = s.Node("app:slack")
	assert.True(t, ok, "apps are never offered, so never removed")
	_, ok = s.Node("topic:k8s")
	assert.False(t, ok)

	k, _ := s.Node("topic:kubernetes")
	assert.True(t, k.Verified)
	assert.Equal(t, 3, k.Weight)

	_, ok = sig.Engagement("topic:submit")
	assert.False(t, ok)
	eng, _ := sig.Engagement("topic:kubernetes")
	assert.EqualValues(t, 500, eng.TotalMs)
}

func TestCleanerSkipsVanishedNodes(t *testing.T) {
	s, sig := cleanupFixture(t)
	client := &llm.MockClient{Reply: func(llm.Request) (*llm.Response, error) {
		// A decay pass lands while the request is in flight.
		s.RemoveNode("topic:k8s")
		s.RemoveNode("topic:golang")
		return &llm.Response{Content: `{"keep":["topic:golang"],"merge":[{"target":"topic:kubernetes","sources":["topic:k8s"]}]}`}, nil
	}}

	res, err := NewCleaner(client, sig, time.Second, nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stale)
	assert.Zero(t, res.Merged)
	assert.Zero(t, res.Kept)

	k, _ := s.Node("topic:kubernetes")
	assert.False(t, k.Verified)
	assert.Equal(t, 2, k.Weight)
}

func TestCleanerFailuresLeaveGraphAlone(t *testing.T) {
	tests := []struct {
		name    string
		client  *llm.MockClient
		outcome string
	}{
		{"service down", &llm.MockClient{Err: errors.New("down")}, "error"},
		{"empty reply", llm.Text("  "), "empty"},
		{"prose reply", llm.Text("I could not classify these."), "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sig := cleanupFixture(t)
			before := s.Nodes()
			res, err := NewCleaner(tt.client, sig, time.Second, nil).Run(context.Background(), s)
			assert.Error(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, before, s.Nodes())
		})
	}
}

func TestCleanerIdleOnEmptyGraph(t *testing.T) {
	s, _ := testStore(t)
	client := llm.Text(`{}`)
	res, err := NewCleaner(client, nil, time.Second, nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "idle", res.Outcome)
	assert.Zero(t, client.CallCount())
}

func TestParseCleanupDropsBadEntries(t *testing.T) {
	got, err := parseCleanup(`{"keep":["a", 5, " "],"merge":[{"target":"x"},{"target":"y","sources":["z"]},"junk"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Keep)
	assert.Equal(t, []mergeGroup{{Target: "y", Sources: []string{"z"}}}, got.Merge)

	_, err = parseCleanup(`{"keep":[1,2]}`)
	assert.Error(t, err)
	_, err = parseCleanup(`no json`)
	assert.Error(t, err)
}

func TestCrossRefLinksSharedContexts(t *testing.T) {
	s, _ := testStore(t)
	labels := []string{"Kubernetes", "Helm", "Terraform", "Grafana", "Prometheus", "Loki", "Tempo"}
	salience := make(map[string]float64)
	for i, l := range labels {
		id := mustAdd(t, s, l, graph.TypeTopic)
		require.True(t, s.SetVerified(id))
		salience[id] = 0.9 - float64(i)*0.1
	}
	mustAdd(t, s, "Noise", graph.TypeTopic)
	s.UpdateNodes(func(n *graph.Node) { n.Salience = salience[n.ID] })

	big := memsearch.Record{ID: "r-big", ContextID: "everything"}
	search := &fakeSearch{
		hits: map[string][]memsearch.Record{
			"Kubernetes": {{ID: "r1", ContextID: "c1"}, big},
			"Helm":       {{ID: "r2", ContextID: "c1"}, big},
			"Terraform":  {{ID: "r3", ContextID: "c1"}, {ID: "r4", ContextID: "c1"}, big},
			"Grafana":    {{ID: "solo"}, big},
			"Loki":       {big},
			"Tempo":      {big},
		},
		fail: map[string]bool{"Prometheus": true},
	}

	res, err := NewCrossRef(search, 0, time.Second, nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Queried)
	assert.Equal(t, 1, res.Contexts)
	assert.Equal(t, 3, res.Edges)
	assert.Equal(t, map[string]int{"ok": 6, "error": 1}, res.Outcomes)
	assert.Equal(t, labels, search.queries, "queried by salience, unverified skipped")

	e, ok := s.Edge(graph.EdgeKey("topic:helm", "topic:kubernetes"))
	require.True(t, ok)
	assert.Equal(t, graph.RelationCrossContext, e.Relation)
	assert.Equal(t, 1, e.Weight)
	_, ok = s.Edge(graph.EdgeKey("topic:grafana", "topic:loki"))
	assert.False(t, ok, "a context shared by six entities is too generic")
}

func TestCrossRefStopsOnCancel(t *testing.T) {
	s, _ := testStore(t)
	id := mustAdd(t, s, "Kubernetes", graph.TypeTopic)
	s.SetVerified(id)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	search := &fakeSearch{}
	res, err := NewCrossRef(search, time.Millisecond, time.Second, nil).Run(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Queried)
	assert.Empty(t, search.queries)
}

func TestMaintainerRunsEveryStep(t *testing.T) {
	s, clock := testStore(t)
	sig := enrich.NewSignals(clock.Now)
	mustAdd(t, s, "Lorem", graph.TypeTopic)
	clock.Advance(10 * 24 * time.Hour)
	mustAdd(t, s, "Ipsum", graph.TypeTopic)

	m := metrics.New()
	client := llm.Text(`{"keep":["topic:ipsum"]}`)
	mt := NewMaintainer(s, sig,
		NewCleaner(client, sig, time.Second, nil),
		NewCrossRef(&fakeSearch{}, 0, time.Second, nil),
		m, nil)

	rep := mt.Run(context.Background())
	assert.Equal(t, []string{"topic:lorem"}, rep.Decay.Nodes)
	require.NotNil(t, rep.Cleanup)
	assert.Equal(t, 1, rep.Cleanup.Kept)
	require.NotNil(t, rep.CrossRef)
	assert.Equal(t, 1, rep.CrossRef.Queried, "the node kept by cleanup is now verified")

	for _, task := range []string{"decay", "cleanup", "crossref"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.MaintenanceRuns.WithLabelValues(task)), task)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMRequests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchRequests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GraphNodes))
}

func TestMaintainerWithoutCollaborators(t *testing.T) {
	s, _ := testStore(t)
	mustAdd(t, s, "Ipsum", graph.TypeTopic)
	rep := NewMaintainer(s, nil, nil, nil, nil, nil).Run(context.Background())
	assert.Nil(t, rep.Cleanup)
	assert.Nil(t, rep.CrossRef)
	assert.Empty(t, rep.Decay.Nodes)
}
