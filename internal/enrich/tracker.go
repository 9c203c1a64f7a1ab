package enrich

import (
	"strings"
	"sync"
	"time"

	"github.com/lazypower/constellation/internal/activity"
)

const (
	// MaxDwell caps how long one entry can be credited for; longer gaps
	// mean the user walked away.
	MaxDwell   = 5 * time.Minute
	SessionGap = 30 * time.Minute
)

// Tracker turns the ordered activity stream into engagement, session and
// context-switch signals. Each entry is credited with the time until the
// next one.
type Tracker struct {
	signals *Signals

	mu           sync.Mutex
	prevAt       time.Time
	prevApp      string
	prevIDs      []string
	sessionStart time.Time
}

func NewTracker(signals *Signals) *Tracker {
	return &Tracker{signals: signals}
}

// Observe accounts for e, whose extracted entities are ids.
func (t *Tracker) Observe(e activity.Entry, ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	at := e.Timestamp
	if at.IsZero() {
		at = t.signals.now()
	}
	if t.prevAt.IsZero() {
		t.sessionStart = at
	} else {
		gap := at.Sub(t.prevAt)
		if gap < 0 {
			gap = 0
			at = t.prevAt
		}
		dwell := min(gap, MaxDwell)
		for _, id := range t.prevIDs {
			t.signals.RecordEngagementAt(id, dwell.Milliseconds(), t.prevAt)
		}
		switch {
		case gap >= SessionGap:
			t.signals.RecordSession(t.prevAt.Add(dwell).Sub(t.sessionStart).Milliseconds())
			t.sessionStart = at
		case !strings.EqualFold(strings.TrimSpace(t.prevApp), strings.TrimSpace(e.App)):
			t.signals.RecordSwitch(at)
		}
	}
	t.prevAt = at
	t.prevApp = e.App
	t.prevIDs = append(t.prevIDs[:0], ids...)
}

// Flush closes the open session, crediting the last entry with no dwell.
func (t *Tracker) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.prevAt.IsZero() {
		return
	}
	for _, id := range t.prevIDs {
		t.signals.RecordEngagementAt(id, 0, t.prevAt)
	}
	t.signals.RecordSession(t.prevAt.Sub(t.sessionStart).Milliseconds())
	t.prevAt = time.Time{}
	t.prevIDs = t.prevIDs[:0]
}

// Reset forgets the open session without crediting it.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prevAt, t.sessionStart = time.Time{}, time.Time{}
	t.prevApp = ""
	t.prevIDs = t.prevIDs[:0]
}
