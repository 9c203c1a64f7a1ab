package importance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/constellation/internal/usermodel"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func span(from, to time.Duration, entities ...string) Session {
	return Session{App: "Code", Entities: entities, Start: t0.Add(from), End: t0.Add(to)}
}

func TestScore(t *testing.T) {
	tasks := []Task{
		{ID: "build", Label: "Build constellation", Sessions: []Session{
			span(0, time.Hour, "Go", "Constellation"),
			span(2*time.Hour, 150*time.Minute, "go", "Go"),
		}},
		{ID: "ops", Label: "Cluster upgrade", Sessions: []Session{
			span(9*time.Hour, 570*time.Minute, "Kubernetes"),
		}},
	}
	now := t0.Add(10 * time.Hour)
	res := DefaultScorer().Score(tasks, now)

	golang := 0.5 + 0.3*math.Exp(-7.5/48) + 0.2
	constellation := 0.5*60/90 + 0.3*math.Exp(-9.0/48) + 0.2*0.5
	kube := 0.5*30/90 + 0.3*math.Exp(-0.5/48) + 0.2*0.5

	require.Len(t, res.Entities, 3)
	assert.Equal(t, "go", res.Entities[0].Key)
	assert.Equal(t, "Go", res.Entities[0].Label, "first mention keeps its casing")
	assert.InDelta(t, golang, res.Entities[0].Score, 1e-9)
	assert.Equal(t, 2, res.Entities[0].Sessions, "repeats inside one session count once")
	assert.EqualValues(t, 90*time.Minute.Milliseconds(), res.Entities[0].DwellMs)
	assert.Equal(t, t0.Add(150*time.Minute), res.Entities[0].LastSeen)

	assert.Equal(t, "constellation", res.Entities[1].Key)
	assert.InDelta(t, constellation, res.Entities[1].Score, 1e-9)
	assert.Equal(t, "kubernetes", res.Entities[2].Key)
	assert.InDelta(t, kube, res.Entities[2].Score, 1e-9)

	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "build", res.Tasks[0].ID)
	assert.InDelta(t, (90*golang+60*constellation)/150, res.Tasks[0].Score, 1e-9)
	assert.EqualValues(t, 90*time.Minute.Milliseconds(), res.Tasks[0].DwellMs)
	assert.Equal(t, "ops", res.Tasks[1].ID)
	assert.InDelta(t, kube, res.Tasks[1].Score, 1e-9)
}

func TestScoreBounds(t *testing.T) {
	tasks := []Task{
		{ID: "a", Sessions: []Session{span(0, 0, "Go"), span(time.Hour, 30*time.Minute, "Go", "")}},
		{ID: "b", Sessions: []Session{{Title: "no entities", Start: t0, End: t0.Add(time.Minute)}}},
	}
	res := DefaultScorer().Score(tasks, t0.Add(-time.Hour))

	require.Len(t, res.Entities, 1)
	e := res.Entities[0]
	assert.Zero(t, e.DwellMs, "backwards sessions add no dwell")
	// dwell factor is zero when nothing has dwell; recency is clamped at now.
	assert.InDelta(t, 0.3+0.2, e.Score, 1e-9)
	assert.Equal(t, t0.Add(time.Hour), e.LastSeen)

	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "a", res.Tasks[0].ID)
	assert.InDelta(t, 0.5, res.Tasks[0].Score, 1e-9, "no dwell falls back to the plain mean")
	assert.Zero(t, res.Tasks[1].Score)

	for _, es := range res.Entities {
		assert.True(t, es.Score >= 0 && es.Score <= 1)
	}
}

func TestScoreEmpty(t *testing.T) {
	res := DefaultScorer().Score(nil, t0)
	assert.NotNil(t, res.Entities)
	assert.NotNil(t, res.Tasks)
	assert.Empty(t, res.Entities)
}

func TestCustomWeights(t *testing.T) {
	sc := Scorer{Weights: Weights{Dwell: 1}}
	res := sc.Score([]Task{{ID: "a", Sessions: []Session{span(0, time.Hour, "Go"), span(0, 30*time.Minute, "Rust")}}}, t0)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, 1.0, res.Entities[0].Score)
	assert.InDelta(t, 0.5, res.Entities[1].Score, 1e-9)
}

func TestTasksFromBlocks(t *testing.T) {
	blocks := []usermodel.Block{
		{ID: "b1", Label: "Code: main.go", Apps: []string{"Code", "Chrome"}, Entities: []string{"Go"}, Start: t0, End: t0.Add(time.Minute)},
		{Label: "Slack", Start: t0.Add(time.Hour), End: t0.Add(time.Hour)},
	}
	tasks := TasksFromBlocks(blocks)
	require.Len(t, tasks, 2)

	assert.Equal(t, "b1", tasks[0].ID)
	require.Len(t, tasks[0].Sessions, 1)
	assert.Equal(t, "Code", tasks[0].Sessions[0].App)
	assert.Equal(t, []string{"Go"}, tasks[0].Sessions[0].Entities)
	assert.Equal(t, time.Minute, tasks[0].Sessions[0].Dwell())

	assert.NotEmpty(t, tasks[1].ID)
	assert.Empty(t, tasks[1].Sessions[0].App)
	assert.Empty(t, TasksFromBlocks(nil))
}
