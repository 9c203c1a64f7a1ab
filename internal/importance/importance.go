// Package importance scores entities and tasks from discrete work
// sessions. It is an alternative to the salience computed by enrichment:
// the input is a list of tasks rather than the live graph, and nothing here
// writes back to it.
package importance

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/usermodel"
)

// Session is one stretch of time spent on a task.
type Session struct {
	App      string    `json:"app"`
	Title    string    `json:"title"`
	Entities []string  `json:"entities"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Dwell is the session length, never negative.
func (s Session) Dwell() time.Duration {
	if s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

func (s Session) last() time.Time {
	if s.End.IsZero() || s.End.Before(s.Start) {
		return s.Start
	}
	return s.End
}

// Task groups the sessions of one unit of work.
type Task struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Sessions []Session `json:"sessions"`
}

// EntityScore is the importance of one entity across all tasks.
type EntityScore struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Score    float64   `json:"score"`
	DwellMs  int64     `json:"dwellMs"`
	Sessions int       `json:"sessions"`
	LastSeen time.Time `json:"lastSeen"`
}

// TaskScore is the importance of one task.
type TaskScore struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	DwellMs int64   `json:"dwellMs"`
}

// Result holds entity and task scores, highest first.
type Result struct {
	Entities []EntityScore `json:"entities"`
	Tasks    []TaskScore   `json:"tasks"`
}

// Weights blend the three factors of an entity score.
type Weights struct {
	Dwell     float64 `json:"dwell"`
	Recency   float64 `json:"recency"`
	Frequency float64 `json:"frequency"`
}

// Scorer computes importance. The zero value is not usable; start from
// DefaultScorer.
type Scorer struct {
	Weights Weights
	// RecencyHours is the e-folding time of the recency factor.
	RecencyHours float64
}

// DefaultScorer weighs dwell 0.5, recency 0.3 and frequency 0.2, with
// recency decaying over 48 hours.
func DefaultScorer() Scorer {
	return Scorer{Weights: Weights{Dwell: 0.5, Recency: 0.3, Frequency: 0.2}, RecencyHours: 48}
}

type tally struct {
	label    string
	dwell    time.Duration
	sessions int
	last     time.Time
}

// Score rates every entity mentioned in tasks, then rates each task as the
// dwell-weighted mean of its entities. Entity labels are merged by their
// normalized form.
func (sc Scorer) Score(tasks []Task, now time.Time) Result {
	res := Result{Entities: []EntityScore{}, Tasks: []TaskScore{}}

	tallies := make(map[string]*tally)
	for _, t := range tasks {
		for _, s := range t.Sessions {
			for _, key := range sessionKeys(s) {
				tl := tallies[key.norm]
				if tl == nil {
					tl = &tally{label: key.label}
					tallies[key.norm] = tl
				}
				tl.dwell += s.Dwell()
				tl.sessions++
				if last := s.last(); last.After(tl.last) {
					tl.last = last
				}
			}
		}
	}

	var maxDwell time.Duration
	maxSessions := 0
	for _, tl := range tallies {
		maxDwell = max(maxDwell, tl.dwell)
		maxSessions = max(maxSessions, tl.sessions)
	}

	scores := make(map[string]float64, len(tallies))
	for key, tl := range tallies {
		var dwell, freq float64
		if maxDwell > 0 {
			dwell = float64(tl.dwell) / float64(maxDwell)
		}
		if maxSessions > 0 {
			freq = float64(tl.sessions) / float64(maxSessions)
		}
		hours := max(0, now.Sub(tl.last).Hours())
		recency := 0.0
		if sc.RecencyHours > 0 {
			recency = math.Exp(-hours / sc.RecencyHours)
		}
		score := graph.Clamp01(sc.Weights.Dwell*dwell + sc.Weights.Recency*recency + sc.Weights.Frequency*freq)
		scores[key] = score
		res.Entities = append(res.Entities, EntityScore{
			Key:      key,
			Label:    tl.label,
			Score:    score,
			DwellMs:  tl.dwell.Milliseconds(),
			Sessions: tl.sessions,
			LastSeen: tl.last,
		})
	}

	for _, t := range tasks {
		res.Tasks = append(res.Tasks, scoreTask(t, scores))
	}

	sort.Slice(res.Entities, func(i, j int) bool {
		if res.Entities[i].Score != res.Entities[j].Score {
			return res.Entities[i].Score > res.Entities[j].Score
		}
		return res.Entities[i].Key < res.Entities[j].Key
	})
	sort.SliceStable(res.Tasks, func(i, j int) bool { return res.Tasks[i].Score > res.Tasks[j].Score })
	return res
}

// scoreTask averages entity scores weighted by how long each entity was on
// screen within the task. A task with no dwell at all falls back to the
// plain mean.
func scoreTask(t Task, scores map[string]float64) TaskScore {
	ts := TaskScore{ID: t.ID, Label: t.Label}
	dwell := make(map[string]time.Duration)
	for _, s := range t.Sessions {
		ts.DwellMs += s.Dwell().Milliseconds()
		for _, key := range sessionKeys(s) {
			dwell[key.norm] += s.Dwell()
		}
	}
	if len(dwell) == 0 {
		return ts
	}

	var sum, weight, plain float64
	for key, d := range dwell {
		sum += scores[key] * d.Seconds()
		weight += d.Seconds()
		plain += scores[key]
	}
	if weight > 0 {
		ts.Score = sum / weight
	} else {
		ts.Score = plain / float64(len(dwell))
	}
	return ts
}

type entityKey struct{ norm, label string }

// sessionKeys returns the distinct normalized entities of a session in
// order of first mention.
func sessionKeys(s Session) []entityKey {
	var out []entityKey
	seen := make(map[string]bool, len(s.Entities))
	for _, e := range s.Entities {
		norm := graph.Normalize(e)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, entityKey{norm: norm, label: e})
	}
	return out
}

// TasksFromBlocks turns task blocks into single-session tasks. Blocks
// without an id get a fresh one.
func TasksFromBlocks(blocks []usermodel.Block) []Task {
	out := make([]Task, 0, len(blocks))
	for _, b := range blocks {
		id := b.ID
		if id == "" {
			id = uuid.NewString()
		}
		app := ""
		if len(b.Apps) > 0 {
			app = b.Apps[0]
		}
		out = append(out, Task{
			ID:    id,
			Label: b.Label,
			Sessions: []Session{{
				App:      app,
				Title:    b.Label,
				Entities: append([]string(nil), b.Entities...),
				Start:    b.Start,
				End:      b.End,
			}},
		})
	}
	return out
}
