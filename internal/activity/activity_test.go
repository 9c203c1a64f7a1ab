package activity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestBufferKeepsChronologicalOrder(t *testing.T) {
	b := NewBuffer(Limits{Activities: 2})
	b.AddEntries(
		Entry{App: "Slack", Timestamp: t0.Add(2 * time.Minute)},
		Entry{App: "Chrome", Timestamp: t0},
		Entry{App: "Figma", Timestamp: t0.Add(time.Minute)},
	)

	got := b.Activities()
	require.Len(t, got, 2)
	assert.Equal(t, "Figma", got[0].App)
	assert.Equal(t, "Slack", got[1].App)
}

func TestSnapshotsSinceSurvivesTrimming(t *testing.T) {
	b := NewBuffer(Limits{Snapshots: 3})
	b.AddSnapshots(Snapshot{Text: "one"}, Snapshot{Text: "two"})

	got, cursor := b.SnapshotsSince(0)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, cursor)

	b.AddSnapshots(Snapshot{Text: "three"}, Snapshot{Text: "four"}, Snapshot{Text: "five"})
	got, cursor = b.SnapshotsSince(cursor)
	require.Len(t, got, 3)
	assert.Equal(t, "three", got[0].Text)
	assert.Equal(t, 5, cursor)

	got, cursor = b.SnapshotsSince(cursor)
	assert.Empty(t, got)
	assert.Equal(t, 5, cursor)
}

func TestLogReloadIsIncremental(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ActivityFile)
	appendFile(t, path, `{"app":"Chrome","title":"Go docs","timestamp":"2026-03-02T09:00:00Z"}`+"\n")
	appendFile(t, path, "not json\n")

	l := OpenLog(dir, DefaultLimits())
	d, err := l.Reload()
	require.NoError(t, err)
	require.Len(t, d.Activities, 1)
	assert.Equal(t, "Go docs", d.Activities[0].Title)

	appendFile(t, path, `{"app":"Slack","title":"general","timestamp":"2026-03-02T09:05:00Z"}`+"\n")
	appendFile(t, path, `{"app":"Half`)

	d, err = l.Reload()
	require.NoError(t, err)
	require.Len(t, d.Activities, 1, "only the new complete line is read")
	assert.Equal(t, "Slack", d.Activities[0].App)

	appendFile(t, path, ` Line","title":"x","timestamp":"2026-03-02T09:06:00Z"}`+"\n")
	d, err = l.Reload()
	require.NoError(t, err)
	require.Len(t, d.Activities, 1)
	assert.Equal(t, "Half Line", d.Activities[0].App)

	assert.Len(t, l.Activities(), 3)
}

func TestLogReloadAllStreams(t *testing.T) {
	dir := t.TempDir()
	appendFile(t, filepath.Join(dir, ScreenFile), `{"app":"Preview","text":"Quarterly plan","timestamp":"2026-03-02T09:00:00Z"}`+"\n")
	appendFile(t, filepath.Join(dir, ClipboardFile), `{"text":"ssh deploy@host","timestamp":"2026-03-02T09:01:00Z"}`+"\n")
	appendFile(t, filepath.Join(dir, MusicFile), `{"title":"Blue in Green","artist":"Miles Davis","timestamp":"2026-03-02T09:02:00Z"}`+"\n")

	l := OpenLog(dir, DefaultLimits())
	d, err := l.Reload()
	require.NoError(t, err)
	assert.Len(t, d.Snapshots, 1)
	assert.Len(t, d.Clips, 1)
	assert.Len(t, d.Tracks, 1)
	assert.Empty(t, d.Activities, "missing activity file is fine")
	assert.False(t, d.Empty())
}

func TestLogRereadsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ActivityFile)
	appendFile(t, path, `{"app":"Chrome","title":"first page","timestamp":"2026-03-02T09:00:00Z"}`+"\n")

	l := OpenLog(dir, DefaultLimits())
	_, err := l.Reload()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"app":"Zed","title":"a","timestamp":"2026-03-02T10:00:00Z"}`+"\n"), 0644))
	d, err := l.Reload()
	require.NoError(t, err)
	require.Len(t, d.Activities, 1)
	assert.Equal(t, "Zed", d.Activities[0].App)
}

func TestLogSkipDiscardsExistingLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ActivityFile)
	appendFile(t, path, `{"app":"Chrome","title":"old","timestamp":"2026-03-02T09:00:00Z"}`+"\n")

	l := OpenLog(dir, DefaultLimits())
	_, err := l.Reload()
	require.NoError(t, err)
	appendFile(t, path, `{"app":"Chrome","title":"unread","timestamp":"2026-03-02T09:01:00Z"}`+"\n")

	require.NoError(t, l.Skip())
	assert.Empty(t, l.Activities())

	appendFile(t, path, `{"app":"Slack","title":"new","timestamp":"2026-03-02T09:02:00Z"}`+"\n")
	d, err := l.Reload()
	require.NoError(t, err)
	require.Len(t, d.Activities, 1)
	assert.Equal(t, "new", d.Activities[0].Title)
}

func TestLogResumeBuffersWithoutReporting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ActivityFile)
	appendFile(t, path, `{"app":"Chrome","title":"first","timestamp":"2026-03-02T09:00:00Z"}`+"\n")

	prev := OpenLog(dir, DefaultLimits())
	_, err := prev.Reload()
	require.NoError(t, err)
	offsets := prev.Offsets()
	assert.Positive(t, offsets[ActivityFile])

	appendFile(t, path, `{"app":"Slack","title":"second","timestamp":"2026-03-02T09:01:00Z"}`+"\n")

	l := OpenLog(dir, DefaultLimits())
	l.Resume(offsets)
	d, err := l.Reload()
	require.NoError(t, err)
	require.Len(t, d.Activities, 1, "lines ingested by the earlier run are not reported")
	assert.Equal(t, "second", d.Activities[0].Title)
	assert.Len(t, l.Activities(), 2, "but they are buffered")
}

func TestReadEntries(t *testing.T) {
	input := strings.Join([]string{
		`{"app":"Chrome","title":"Inbox","timestamp":"2026-03-02T09:00:00Z"}`,
		``,
		`{broken`,
		`{"url":"https://example.com"}`,
		`{"app":"Slack","title":"random","timestamp":"2026-03-02T09:01:00Z"}`,
	}, "\n")

	entries, err := ReadEntries(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Slack", entries[1].App)
}

func TestWatchFiresOnFeedWrite(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, dir, nil, func() { calls.Add(1) }) }()

	// Give the watcher time to register the directory.
	time.Sleep(200 * time.Millisecond)
	appendFile(t, filepath.Join(dir, "notes.txt"), "ignored\n")
	appendFile(t, filepath.Join(dir, ActivityFile), "{}\n")

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
