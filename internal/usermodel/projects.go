package usermodel

import (
	"sort"
	"time"

	"github.com/lazypower/constellation/internal/enrich"
	"github.com/lazypower/constellation/internal/graph"
)

// ProjectStatus is how alive a project looks.
type ProjectStatus string

const (
	StatusActive    ProjectStatus = "active"
	StatusPaused    ProjectStatus = "paused"
	StatusCompleted ProjectStatus = "completed"
	StatusUnknown   ProjectStatus = "unknown"
)

const (
	activeWithin = 7 * 24 * time.Hour
	pausedWithin = 30 * 24 * time.Hour

	minExpertise      = 10 * time.Minute
	expertiseCapHours = 50

	maxRelated = 10
)

// Project is a project node with its status and the people around it.
type Project struct {
	ID          string        `json:"id"`
	Label       string        `json:"label"`
	Status      ProjectStatus `json:"status"`
	LastTouched time.Time     `json:"lastTouched"`
	RecentMs    int64         `json:"recentMs"`
	TotalMs     int64         `json:"totalMs"`
	People      []string      `json:"people"`
	Related     []string      `json:"related"`
	Salience    float64       `json:"salience"`
}

// Skill is an area of expertise.
type Skill struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Type        string      `json:"type"`
	Hours       float64     `json:"hours"`
	Proficiency float64     `json:"proficiency"`
	Trend       graph.Trend `json:"trend,omitempty"`
}

// Projects returns up to limit projects: active ones first, then by
// recency.
func (b *Builder) Projects(limit int) []Project {
	now := b.now()
	var out []Project
	for _, n := range b.store.Nodes() {
		if n.Type != graph.TypeProject {
			continue
		}
		eng := b.engagement(n.ID)
		p := Project{
			ID:          n.ID,
			Label:       n.Label,
			LastTouched: n.LastSeen,
			RecentMs:    eng.RecentMs(now),
			TotalMs:     eng.TotalMs,
			People:      []string{},
			Related:     []string{},
			Salience:    n.Salience,
		}
		p.Status = projectStatus(now.Sub(n.LastSeen), p.RecentMs)
		for _, nb := range b.store.Neighbors(n.ID, maxRelated) {
			if nb.Node.Type == graph.TypePerson {
				p.People = append(p.People, nb.Node.Label)
			} else {
				p.Related = append(p.Related, nb.Node.Label)
			}
		}
		out = append(out, p)
	}

	rank := map[ProjectStatus]int{StatusActive: 0, StatusUnknown: 1, StatusPaused: 2, StatusCompleted: 3}
	sort.SliceStable(out, func(i, j int) bool {
		if rank[out[i].Status] != rank[out[j].Status] {
			return rank[out[i].Status] < rank[out[j].Status]
		}
		return out[i].LastTouched.After(out[j].LastTouched)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// projectStatus: touched within a week with recent engagement is active;
// touched within a week without any is unknown; within a month paused;
// anything older completed.
func projectStatus(idle time.Duration, recentMs int64) ProjectStatus {
	switch {
	case idle <= activeWithin && recentMs > 0:
		return StatusActive
	case idle <= activeWithin:
		return StatusUnknown
	case idle <= pausedWithin:
		return StatusPaused
	}
	return StatusCompleted
}

// Expertise returns skills and apps with at least ten minutes of
// engagement, most practiced first.
func (b *Builder) Expertise(limit int) []Skill {
	var out []Skill
	for _, n := range b.store.Nodes() {
		if n.Type != graph.TypeSkill && n.Type != graph.TypeApp {
			continue
		}
		ms := b.engagement(n.ID).TotalMs
		if ms < minExpertise.Milliseconds() {
			continue
		}
		out = append(out, Skill{
			ID:          n.ID,
			Label:       n.Label,
			Type:        string(n.Type),
			Hours:       float64(ms) / float64(time.Hour.Milliseconds()),
			Proficiency: enrich.Proficiency(ms, expertiseCapHours),
			Trend:       n.EngagementTrend,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Hours > out[j].Hours })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
