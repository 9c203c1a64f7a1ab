package activity

import (
	"sort"
	"sync"
	"time"
)

// Entry is one window or tab observation.
type Entry struct {
	App       string    `json:"app"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a block of text read off the screen.
type Snapshot struct {
	App       string    `json:"app"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Text      string    `json:"text"`
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Clip is one clipboard copy.
type Clip struct {
	Text      string    `json:"text"`
	App       string    `json:"app,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Track is one now-playing observation.
type Track struct {
	Title     string    `json:"title"`
	Artist    string    `json:"artist,omitempty"`
	Album     string    `json:"album,omitempty"`
	App       string    `json:"app,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Source is a read-only view of the activity feed. Every slice is a copy,
// oldest first.
type Source interface {
	Activities() []Entry
	Snapshots() []Snapshot
	Clipboard() []Clip
	Music() []Track
}

// Limits bound how much of each stream a Buffer retains.
type Limits struct {
	Activities int
	Snapshots  int
	Clips      int
	Tracks     int
}

// DefaultLimits keeps roughly a week of typical activity.
func DefaultLimits() Limits {
	return Limits{Activities: 5000, Snapshots: 1000, Clips: 500, Tracks: 1000}
}

// Buffer is an in-memory Source. The zero value is not usable; use NewBuffer.
type Buffer struct {
	mu         sync.RWMutex
	limits     Limits
	activities []Entry
	snapshots  []Snapshot
	clips      []Clip
	tracks     []Track

	// snapshotBase counts snapshots dropped from the front, so cursors stay
	// valid across trimming.
	snapshotBase int
}

// NewBuffer returns an empty Buffer.
func NewBuffer(limits Limits) *Buffer {
	return &Buffer{limits: limits}
}

func (b *Buffer) AddEntries(entries ...Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activities = appendSorted(b.activities, entries, func(e Entry) time.Time { return e.Timestamp })
	b.activities = trim(b.activities, b.limits.Activities)
}

func (b *Buffer) AddSnapshots(snaps ...Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, snaps...)
	if n := len(b.snapshots) - b.limits.Snapshots; b.limits.Snapshots > 0 && n > 0 {
		b.snapshots = b.snapshots[n:]
		b.snapshotBase += n
	}
}

func (b *Buffer) AddClips(clips ...Clip) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clips = appendSorted(b.clips, clips, func(c Clip) time.Time { return c.Timestamp })
	b.clips = trim(b.clips, b.limits.Clips)
}

func (b *Buffer) AddTracks(tracks ...Track) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracks = appendSorted(b.tracks, tracks, func(t Track) time.Time { return t.Timestamp })
	b.tracks = trim(b.tracks, b.limits.Tracks)
}

func (b *Buffer) Activities() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Entry(nil), b.activities...)
}

func (b *Buffer) Snapshots() []Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Snapshot(nil), b.snapshots...)
}

func (b *Buffer) Clipboard() []Clip {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Clip(nil), b.clips...)
}

func (b *Buffer) Music() []Track {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Track(nil), b.tracks...)
}

// SnapshotsSince returns snapshots at stream positions >= cursor and the
// cursor to use next time. Positions are absolute, so trimming the buffer
// never causes a snapshot to be returned twice.
func (b *Buffer) SnapshotsSince(cursor int) ([]Snapshot, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	end := b.snapshotBase + len(b.snapshots)
	if cursor < b.snapshotBase {
		cursor = b.snapshotBase
	}
	if cursor >= end {
		return nil, end
	}
	return append([]Snapshot(nil), b.snapshots[cursor-b.snapshotBase:]...), end
}

// Reset drops everything.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activities, b.snapshots, b.clips, b.tracks = nil, nil, nil, nil
	b.snapshotBase = 0
}

// appendSorted appends items and keeps s ordered by timestamp. Feeds are
// almost always in order, so the sort is usually a no-op check.
func appendSorted[T any](s, items []T, ts func(T) time.Time) []T {
	s = append(s, items...)
	if !sort.SliceIsSorted(s, func(i, j int) bool { return ts(s[i]).Before(ts(s[j])) }) {
		sort.SliceStable(s, func(i, j int) bool { return ts(s[i]).Before(ts(s[j])) })
	}
	return s
}

func trim[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return append([]T(nil), s[len(s)-limit:]...)
	}
	return s
}
