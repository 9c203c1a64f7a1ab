package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/llm"
	"github.com/lazypower/constellation/internal/logging"
)

// Batch sizes for one extraction request.
const (
	maxScreenItems  = 10
	maxSummaryItems = 10
	maxTitleItems   = 15
	maxClipItems    = 5
)

// Feed is the part of the activity feed assisted extraction reads.
type Feed interface {
	activity.Source
	SnapshotsSince(cursor int) ([]activity.Snapshot, int)
}

// Cursor marks how far assisted extraction has read. Snapshot is an
// absolute position in the snapshot stream; Since is the newest timestamp
// already sent from the other streams.
type Cursor struct {
	Snapshot int       `json:"snapshot"`
	Since    time.Time `json:"since"`
}

// Result reports one assisted extraction pass.
type Result struct {
	Snapshots int
	Entities  int
	Verified  int
	Relations int
	Rejected  int
	Outcome   string
}

// Assist proposes entities and relations from batched activity text with a
// text-generation model.
type Assist struct {
	client  llm.Client
	feed    Feed
	timeout time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	cursor Cursor
}

// NewAssist returns an Assist reading from feed.
func NewAssist(client llm.Client, feed Feed, timeout time.Duration, log *zap.Logger) *Assist {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assist{client: client, feed: feed, timeout: timeout, log: log}
}

// Cursor returns the current read position.
func (a *Assist) Cursor() Cursor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// SetCursor restores a persisted read position.
func (a *Assist) SetCursor(c Cursor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cursor = c
}

// next collects everything not yet sent and advances the cursor past it.
// Whatever happens to the request afterwards, this text is not sent again.
func (a *Assist) next() (llm.ExtractionInput, int, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var in llm.ExtractionInput
	snaps, pos := a.feed.SnapshotsSince(a.cursor.Snapshot)
	a.cursor.Snapshot = pos
	if len(snaps) > maxScreenItems {
		snaps = snaps[len(snaps)-maxScreenItems:]
	}
	source := ""
	for _, s := range snaps {
		if t := truncateClean(s.Text, maxScreenChars); t != "" {
			in.ScreenText = append(in.ScreenText, t)
		}
		if s.App != "" {
			source = s.App
		}
	}

	since := a.cursor.Since
	newest := since
	seenSummary := make(map[string]bool)
	seenTitle := make(map[string]bool)
	for _, e := range a.feed.Activities() {
		if !e.Timestamp.After(since) {
			continue
		}
		if e.Timestamp.After(newest) {
			newest = e.Timestamp
		}
		if s := truncateClean(e.Summary, maxSummaryChars); s != "" && !seenSummary[s] {
			seenSummary[s] = true
			in.Summaries = append(in.Summaries, s)
		}
		if e.Title != "" {
			t := e.Title
			if e.App != "" {
				t = e.App + ": " + e.Title
			}
			if !seenTitle[t] {
				seenTitle[t] = true
				in.Titles = append(in.Titles, t)
			}
		}
	}
	for _, c := range a.feed.Clipboard() {
		if !c.Timestamp.After(since) {
			continue
		}
		if c.Timestamp.After(newest) {
			newest = c.Timestamp
		}
		if t := truncateClean(c.Text, maxClipChars); t != "" {
			in.Clipboard = append(in.Clipboard, t)
		}
	}
	a.cursor.Since = newest

	in.Summaries = tail(in.Summaries, maxSummaryItems)
	in.Titles = tail(in.Titles, maxTitleItems)
	in.Clipboard = tail(in.Clipboard, maxClipItems)
	return in, len(snaps), source
}

// Run sends the unread activity text to the model and applies the reply
// to s. An unavailable model skips the pass; the returned error is for
// logging only.
func (a *Assist) Run(ctx context.Context, s *graph.Store) (Result, error) {
	in, nsnaps, source := a.next()
	res := Result{Snapshots: nsnaps}
	if in.Empty() {
		res.Outcome = "idle"
		return res, nil
	}

	reply, err := llm.TryComplete(ctx, a.client, llm.UserRequest(llm.ExtractionSystem, llm.ExtractionPrompt(in)), a.timeout)
	res.Outcome = llm.Outcome(err)
	if err != nil {
		a.log.Warn("assisted extraction skipped", zap.String("outcome", res.Outcome), zap.Error(err))
		return res, err
	}

	entities, relations, err := parseExtraction(reply)
	if err != nil {
		res.Outcome = "malformed"
		a.log.Warn("unparseable extraction reply", zap.String("reply", logging.Truncate(reply, 200)), zap.Error(err))
		return res, err
	}

	occ := graph.Occurrence{Context: source}
	for _, pe := range entities {
		e, err := validateEntity(pe)
		if err != nil {
			res.Rejected++
			a.log.Debug("rejecting entity", zap.Error(err))
			continue
		}
		id, ok := s.AddEntity(e.Label, entityType(e.Type), occ)
		if !ok {
			res.Rejected++
			continue
		}
		res.Entities++
		if e.Confidence == "high" && s.SetVerified(id) {
			res.Verified++
		}
	}
	for _, pr := range relations {
		r, err := validateRelation(pr)
		if err != nil {
			res.Rejected++
			a.log.Debug("rejecting relation", zap.Error(err))
			continue
		}
		if _, ok := s.AddRelation(r.From, r.To, r.Relation); ok {
			res.Relations++
		}
	}

	a.log.Info("assisted extraction",
		zap.Int("snapshots", res.Snapshots),
		zap.Int("entities", res.Entities),
		zap.Int("verified", res.Verified),
		zap.Int("relations", res.Relations),
		zap.Int("rejected", res.Rejected))
	return res, nil
}

// parseExtraction reads the {entities, relations} object, falling back to
// a bare array of entities.
func parseExtraction(reply string) ([]proposedEntity, []proposedRelation, error) {
	var obj struct {
		Entities  []json.RawMessage `json:"entities"`
		Relations []json.RawMessage `json:"relations"`
	}
	objErr := llm.ExtractObject(reply, &obj)
	if objErr == nil && (obj.Entities != nil || obj.Relations != nil) {
		return decodeEach[proposedEntity](obj.Entities), decodeEach[proposedRelation](obj.Relations), nil
	}

	var arr []json.RawMessage
	if err := llm.ExtractArray(reply, &arr); err != nil {
		if objErr == nil {
			objErr = llm.ErrNoResult
		}
		return nil, nil, fmt.Errorf("parse extraction: %w", errors.Join(objErr, err))
	}
	return decodeEach[proposedEntity](arr), nil, nil
}

// decodeEach decodes items one by one so a single bad element does not
// discard the rest.
func decodeEach[T any](raw []json.RawMessage) []T {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if json.Unmarshal(r, &v) == nil {
			out = append(out, v)
		}
	}
	return out
}

func tail(s []string, n int) []string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
