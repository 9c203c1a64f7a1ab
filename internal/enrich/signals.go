package enrich

import (
	"sync"
	"time"
)

const (
	recentWindow   = 7 * 24 * time.Hour
	maxSessions    = 100
	switchWindow   = time.Hour
	dayLayout      = "2006-01-02"
	hoursPerDay    = 24
	daysPerWeek    = 7
	recentDayCount = 7
)

// Engagement is the accumulated attention paid to one entity.
type Engagement struct {
	TotalMs  int64     `json:"totalMs"`
	Sessions int       `json:"sessions"`
	LastSeen time.Time `json:"lastSeen"`
	// Days holds per-day milliseconds for the recent window, keyed
	// yyyy-mm-dd in UTC.
	Days map[string]int64 `json:"days,omitempty"`
}

// RecentMs is the engagement within the 7 days before now.
func (e Engagement) RecentMs(now time.Time) int64 {
	cutoff := now.UTC().Add(-recentWindow).Format(dayLayout)
	var sum int64
	for day, ms := range e.Days {
		if day > cutoff {
			sum += ms
		}
	}
	return sum
}

// SignalState is the serializable content of Signals.
type SignalState struct {
	Entities  map[string]*Engagement `json:"entityEngagement"`
	Hourly    [hoursPerDay]int64     `json:"hourlyActivity"`
	Daily     [daysPerWeek]int64     `json:"dailyActivity"`
	Durations []int64                `json:"sessionDurations"`
	Switches  []time.Time            `json:"switchTimestamps"`
	TotalMs   int64                  `json:"totalActivityMs"`
}

// Signals accumulates engagement. It is safe for concurrent use.
type Signals struct {
	mu    sync.Mutex
	now   func() time.Time
	state SignalState
}

// NewSignals returns empty signals. now may be nil.
func NewSignals(now func() time.Time) *Signals {
	if now == nil {
		now = time.Now
	}
	return &Signals{now: now, state: SignalState{Entities: make(map[string]*Engagement)}}
}

// RecordEngagement adds durationMs of attention to id and to the hourly
// and daily histograms.
func (s *Signals) RecordEngagement(id string, durationMs int64) {
	s.RecordEngagementAt(id, durationMs, s.now())
}

// RecordEngagementAt is RecordEngagement for attention paid at a known time.
func (s *Signals) RecordEngagementAt(id string, durationMs int64, at time.Time) {
	if id == "" || durationMs < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.state.Entities[id]
	if e == nil {
		e = &Engagement{}
		s.state.Entities[id] = e
	}
	e.TotalMs += durationMs
	e.Sessions++
	if at.After(e.LastSeen) {
		e.LastSeen = at
	}
	if e.Days == nil {
		e.Days = make(map[string]int64)
	}
	e.Days[at.UTC().Format(dayLayout)] += durationMs
	pruneDays(e.Days, s.now())

	s.state.Hourly[at.Hour()] += durationMs
	s.state.Daily[at.Weekday()] += durationMs
}

func pruneDays(days map[string]int64, now time.Time) {
	if len(days) <= recentDayCount {
		return
	}
	cutoff := now.UTC().Add(-recentWindow).Format(dayLayout)
	for day := range days {
		if day <= cutoff {
			delete(days, day)
		}
	}
}

// RecordSession adds a finished session to the ring of recent durations.
func (s *Signals) RecordSession(durationMs int64) {
	if durationMs <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Durations = append(s.state.Durations, durationMs)
	if n := len(s.state.Durations) - maxSessions; n > 0 {
		s.state.Durations = s.state.Durations[n:]
	}
	s.state.TotalMs += durationMs
}

// RecordSwitch notes a context switch at t. Only the last hour is kept.
func (s *Signals) RecordSwitch(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Switches = append(s.state.Switches, t)
	s.pruneSwitchesLocked()
}

func (s *Signals) pruneSwitchesLocked() {
	cutoff := s.now().Add(-switchWindow)
	kept := s.state.Switches[:0]
	for _, t := range s.state.Switches {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.state.Switches = kept
}

// SwitchesSince counts context switches after t.
func (s *Signals) SwitchesSince(t time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ts := range s.state.Switches {
		if ts.After(t) {
			n++
		}
	}
	return n
}

// Engagement returns a copy of the engagement recorded for id.
func (s *Signals) Engagement(id string) (Engagement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state.Entities[id]
	if !ok {
		return Engagement{}, false
	}
	return e.copy(), true
}

func (e *Engagement) copy() Engagement {
	c := *e
	if e.Days != nil {
		c.Days = make(map[string]int64, len(e.Days))
		for k, v := range e.Days {
			c.Days[k] = v
		}
	}
	return c
}

// Merge folds the engagement of sources into target, following a graph merge.
func (s *Signals) Merge(target string, sources []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range sources {
		e, ok := s.state.Entities[src]
		if !ok || src == target {
			continue
		}
		delete(s.state.Entities, src)
		t := s.state.Entities[target]
		if t == nil {
			s.state.Entities[target] = e
			continue
		}
		t.TotalMs += e.TotalMs
		t.Sessions += e.Sessions
		if e.LastSeen.After(t.LastSeen) {
			t.LastSeen = e.LastSeen
		}
		for day, ms := range e.Days {
			if t.Days == nil {
				t.Days = make(map[string]int64)
			}
			t.Days[day] += ms
		}
	}
}

// Forget drops engagement for ids no longer in the graph.
func (s *Signals) Forget(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.state.Entities, id)
	}
}

// State returns a deep copy for persistence.
func (s *Signals) State() SignalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Entities = make(map[string]*Engagement, len(s.state.Entities))
	for id, e := range s.state.Entities {
		c := e.copy()
		st.Entities[id] = &c
	}
	st.Durations = append([]int64(nil), s.state.Durations...)
	st.Switches = append([]time.Time(nil), s.state.Switches...)
	return st
}

// Restore replaces the current state. Nil entries are dropped.
func (s *Signals) Restore(st SignalState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entities := make(map[string]*Engagement, len(st.Entities))
	for id, e := range st.Entities {
		if e != nil && id != "" {
			c := e.copy()
			entities[id] = &c
		}
	}
	st.Entities = entities
	if n := len(st.Durations) - maxSessions; n > 0 {
		st.Durations = st.Durations[n:]
	}
	st.Durations = append([]int64(nil), st.Durations...)
	st.Switches = append([]time.Time(nil), st.Switches...)
	s.state = st
	s.pruneSwitchesLocked()
}

// Reset clears everything.
func (s *Signals) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SignalState{Entities: make(map[string]*Engagement)}
}
