package activity

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Feed file names inside the feed directory.
const (
	ActivityFile  = "activity.jsonl"
	ScreenFile    = "screen.jsonl"
	ClipboardFile = "clipboard.jsonl"
	MusicFile     = "music.jsonl"
)

const maxLineSize = 1024 * 1024

// Delta is what one Reload picked up.
type Delta struct {
	Activities []Entry
	Snapshots  []Snapshot
	Clips      []Clip
	Tracks     []Track
}

// Empty reports whether nothing new was read.
func (d Delta) Empty() bool {
	return len(d.Activities) == 0 && len(d.Snapshots) == 0 && len(d.Clips) == 0 && len(d.Tracks) == 0
}

// Log tails the JSONL feed files in a directory into a Buffer. The files
// are owned by the capture side and only ever read here.
type Log struct {
	*Buffer
	dir string

	mu      sync.Mutex
	offsets map[string]int64
	resume  map[string]int64 // lines ending at or before these were ingested by an earlier run
}

// OpenLog returns a Log over dir. Nothing is read until Reload.
func OpenLog(dir string, limits Limits) *Log {
	return &Log{
		Buffer:  NewBuffer(limits),
		dir:     dir,
		offsets: make(map[string]int64),
		resume:  make(map[string]int64),
	}
}

// Dir returns the feed directory.
func (l *Log) Dir() string { return l.dir }

// Offsets returns the read position in each feed file.
func (l *Log) Offsets() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.offsets))
	for k, v := range l.offsets {
		out[k] = v
	}
	return out
}

// Resume records positions returned by Offsets in an earlier run. Lines
// before them are still buffered by Reload but left out of its Delta.
func (l *Log) Resume(offsets map[string]int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resume = make(map[string]int64, len(offsets))
	for k, v := range offsets {
		l.resume[k] = v
	}
}

// Reload reads lines appended since the previous call. Missing files are
// skipped, malformed lines are dropped, and a file that shrank is re-read
// from the start.
func (l *Log) Reload() (Delta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var d, replay Delta
	into := func(seen bool) *Delta {
		if seen {
			return &replay
		}
		return &d
	}
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	collect(l.tail(ActivityFile, func(line []byte, seen bool) {
		var e Entry
		if json.Unmarshal(line, &e) == nil && (e.App != "" || e.Title != "") {
			t := into(seen)
			t.Activities = append(t.Activities, e)
		}
	}))
	collect(l.tail(ScreenFile, func(line []byte, seen bool) {
		var s Snapshot
		if json.Unmarshal(line, &s) == nil && s.Text != "" {
			t := into(seen)
			t.Snapshots = append(t.Snapshots, s)
		}
	}))
	collect(l.tail(ClipboardFile, func(line []byte, seen bool) {
		var c Clip
		if json.Unmarshal(line, &c) == nil && c.Text != "" {
			t := into(seen)
			t.Clips = append(t.Clips, c)
		}
	}))
	collect(l.tail(MusicFile, func(line []byte, seen bool) {
		var tr Track
		if json.Unmarshal(line, &tr) == nil && tr.Title != "" {
			t := into(seen)
			t.Tracks = append(t.Tracks, tr)
		}
	}))

	for _, x := range []Delta{replay, d} {
		l.AddEntries(x.Activities...)
		l.AddSnapshots(x.Snapshots...)
		l.AddClips(x.Clips...)
		l.AddTracks(x.Tracks...)
	}
	return d, errors.Join(errs...)
}

// tail feeds every complete line after the stored offset to fn, flagging
// lines an earlier run already ingested. A trailing partial line is left
// for the next call.
func (l *Log) tail(name string, fn func(line []byte, seen bool)) error {
	path := filepath.Join(l.dir, name)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	offset := l.offsets[name]
	if info.Size() < offset {
		offset = 0
	}
	resume := l.resume[name]
	if info.Size() < resume {
		resume = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", name, err)
	}

	defer func() {
		l.offsets[name] = offset
		if offset >= resume {
			delete(l.resume, name)
		}
	}()
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			offset += int64(len(line))
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 && len(trimmed) <= maxLineSize {
				fn(trimmed, offset <= resume)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
	}
}

// Reset forgets read positions and buffered entries. The next Reload
// starts from the beginning of every file.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offsets = make(map[string]int64)
	l.resume = make(map[string]int64)
	l.Buffer.Reset()
}

// Skip marks everything already in the feed files as read without loading
// it, and empties the buffer.
func (l *Log) Skip() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, name := range []string{ActivityFile, ScreenFile, ClipboardFile, MusicFile} {
		if err := l.tail(name, func([]byte, bool) {}); err != nil {
			errs = append(errs, err)
		}
	}
	l.resume = make(map[string]int64)
	l.Buffer.Reset()
	return errors.Join(errs...)
}

// ReadEntries parses a JSONL stream of activity entries, skipping malformed
// lines.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip malformed lines
		}
		if e.App == "" && e.Title == "" {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	return entries, nil
}
