// Package usermodel derives who and what matters to the user from the
// entity graph, the engagement signals and the raw activity feed. All
// views are computed on demand and never write back.
package usermodel

import (
	"time"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/enrich"
	"github.com/lazypower/constellation/internal/graph"
)

// Limits for the full model.
const (
	defaultPeople   = 20
	defaultProjects = 20
	defaultSkills   = 20
	blockWindow     = 24 * time.Hour
)

// Model is the complete derived user model.
type Model struct {
	People      []Person  `json:"people"`
	Projects    []Project `json:"projects"`
	Expertise   []Skill   `json:"expertise"`
	Context     Context   `json:"context"`
	TaskBlocks  []Block   `json:"taskBlocks"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Builder computes user-model views over shared state.
type Builder struct {
	store      *graph.Store
	signals    *enrich.Signals
	feed       activity.Source
	classifier *enrich.Classifier
	now        func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithClassifier sets the context classifier used for relationships and
// channels.
func WithClassifier(c *enrich.Classifier) Option {
	return func(b *Builder) {
		if c != nil {
			b.classifier = c
		}
	}
}

// NewBuilder returns a Builder. signals and feed may be nil.
func NewBuilder(s *graph.Store, sig *enrich.Signals, feed activity.Source, opts ...Option) *Builder {
	b := &Builder{
		store:      s,
		signals:    sig,
		feed:       feed,
		classifier: enrich.NewClassifier(nil),
		now:        time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Builder) engagement(id string) enrich.Engagement {
	if b.signals == nil {
		return enrich.Engagement{}
	}
	e, _ := b.signals.Engagement(id)
	return e
}

func (b *Builder) activities() []activity.Entry {
	if b.feed == nil {
		return nil
	}
	return b.feed.Activities()
}

// Build computes every view. Task blocks cover the last day of activity.
func (b *Builder) Build() Model {
	now := b.now()
	return Model{
		People:      b.People(defaultPeople),
		Projects:    b.Projects(defaultProjects),
		Expertise:   b.Expertise(defaultSkills),
		Context:     b.CurrentContext(),
		TaskBlocks:  b.TaskBlocks(now.Add(-blockWindow), now),
		GeneratedAt: now,
	}
}
