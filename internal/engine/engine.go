// Package engine wires the graph, signals and activity feed together and
// drives the periodic extraction, enrichment, maintenance and persistence
// passes.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/config"
	"github.com/lazypower/constellation/internal/enrich"
	"github.com/lazypower/constellation/internal/extract"
	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/llm"
	"github.com/lazypower/constellation/internal/logging"
	"github.com/lazypower/constellation/internal/maintain"
	"github.com/lazypower/constellation/internal/memsearch"
	"github.com/lazypower/constellation/internal/metrics"
	"github.com/lazypower/constellation/internal/store"
	"github.com/lazypower/constellation/internal/usermodel"
)

// Feed is the activity feed the engine reads from and appends to.
type Feed interface {
	extract.Feed
	AddEntries(entries ...activity.Entry)
	AddSnapshots(snaps ...activity.Snapshot)
	AddClips(clips ...activity.Clip)
	AddTracks(tracks ...activity.Track)
	Reset()
}

// reloader is a feed backed by files on disk.
type reloader interface {
	Reload() (activity.Delta, error)
	Skip() error
	Dir() string
	Offsets() map[string]int64
	Resume(offsets map[string]int64)
}

// Deps are the collaborators of an Engine. Everything but Feed may be nil.
type Deps struct {
	DB      *store.DB
	LLM     llm.Client
	Search  memsearch.Client
	Feed    Feed
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Clock   func() time.Time
}

// Engine owns the live graph and everything that mutates it.
type Engine struct {
	cfg     config.Config
	db      *store.DB
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time

	store      *graph.Store
	signals    *enrich.Signals
	tracker    *enrich.Tracker
	feed       Feed
	classifier *enrich.Classifier
	extractor  *extract.Extractor
	assist     *extract.Assist
	enricher   *enrich.Enricher
	maintainer *maintain.Maintainer

	// ingestMu keeps entries flowing through the tracker in order.
	ingestMu sync.Mutex

	mu       sync.RWMutex
	metadata enrich.Metadata

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	jobs      gocron.Scheduler
	wg        sync.WaitGroup
}

// New builds an Engine from cfg. It does not load persisted state or start
// any timers.
func New(cfg config.Config, deps Deps) *Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	feed := deps.Feed
	if feed == nil {
		feed = activity.NewBuffer(activity.DefaultLimits())
	}

	e := &Engine{
		cfg:        cfg,
		db:         deps.DB,
		metrics:    deps.Metrics,
		log:        log,
		now:        now,
		feed:       feed,
		classifier: enrich.NewClassifier(cfg.Contexts),
		store:      graph.New(graph.WithClock(now), graph.WithLogger(logging.Named(log, "graph"))),
		signals:    enrich.NewSignals(now),
	}
	e.tracker = enrich.NewTracker(e.signals)

	var ner extract.Recognizer
	if cfg.Graph.NER {
		ner = extract.ProseNER{}
	}
	e.extractor = extract.New(ner, logging.Named(log, "extract"))
	e.enricher = enrich.NewEnricher(e.classifier, enrich.WithClock(now), enrich.WithLogger(logging.Named(log, "enrich")))

	var cleaner *maintain.Cleaner
	if deps.LLM != nil {
		e.assist = extract.NewAssist(deps.LLM, feed, cfg.LLM.Timeout, logging.Named(log, "assist"))
		cleaner = maintain.NewCleaner(deps.LLM, e.signals, cfg.LLM.Timeout, logging.Named(log, "cleanup"))
	}
	var crossref *maintain.CrossRef
	if deps.Search != nil {
		crossref = maintain.NewCrossRef(deps.Search, cfg.Search.Delay, cfg.Search.Timeout, logging.Named(log, "crossref"))
	}
	e.maintainer = maintain.NewMaintainer(e.store, e.signals, cleaner, crossref, deps.Metrics, logging.Named(log, "maintain"))
	return e
}

func (e *Engine) Store() *graph.Store              { return e.store }
func (e *Engine) Signals() *enrich.Signals         { return e.signals }
func (e *Engine) Feed() activity.Source            { return e.feed }
func (e *Engine) Classifier() *enrich.Classifier   { return e.classifier }
func (e *Engine) Metrics() *metrics.Metrics        { return e.metrics }
func (e *Engine) Config() config.Config            { return e.cfg }
func (e *Engine) Now() time.Time                   { return e.now() }
func (e *Engine) AssistEnabled() bool              { return e.assist != nil }
func (e *Engine) Logger() *zap.Logger              { return e.log }
func (e *Engine) ExtractionCursor() extract.Cursor { return e.cursor() }

// Metadata returns the summary computed by the last enrichment pass.
func (e *Engine) Metadata() enrich.Metadata {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metadata
}

// UserModel returns a builder over the live state.
func (e *Engine) UserModel() *usermodel.Builder {
	return usermodel.NewBuilder(e.store, e.signals, e.feed,
		usermodel.WithClock(e.now), usermodel.WithClassifier(e.classifier))
}

// Accept appends a batch of feed items and ingests its activity entries.
// It returns the number of entity occurrences recorded.
func (e *Engine) Accept(d activity.Delta) int {
	e.feed.AddEntries(d.Activities...)
	e.feed.AddSnapshots(d.Snapshots...)
	e.feed.AddClips(d.Clips...)
	e.feed.AddTracks(d.Tracks...)
	return e.Ingest(d.Activities...)
}

// Ingest runs rule extraction over entries, in order, and feeds the
// engagement tracker. The entries are not added to the feed.
func (e *Engine) Ingest(entries ...activity.Entry) int {
	if len(entries) == 0 {
		return 0
	}
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	added := 0
	for _, entry := range entries {
		ids := e.extractor.Apply(e.store, entry)
		e.tracker.Observe(entry, ids)
		added += len(ids)
	}
	e.metrics.EntityAdded("rules", added)
	e.metrics.SetGraphSize(e.store.Len())
	return added
}

// Reload pulls new lines from a file-backed feed and ingests them. It is a
// no-op for in-memory feeds.
func (e *Engine) Reload() (activity.Delta, error) {
	r, ok := e.feed.(reloader)
	if !ok {
		return activity.Delta{}, nil
	}
	d, err := r.Reload()
	if err != nil {
		e.log.Warn("feed reload incomplete", zap.Error(err))
	}
	if n := e.Ingest(d.Activities...); n > 0 {
		e.log.Debug("ingested feed", zap.Int("entries", len(d.Activities)), zap.Int("occurrences", n))
	}
	return d, err
}

// RunExtraction runs one assisted extraction pass over unread feed text.
func (e *Engine) RunExtraction(ctx context.Context) (extract.Result, error) {
	if e.assist == nil {
		return extract.Result{Outcome: "disabled"}, nil
	}
	start := time.Now()
	defer e.metrics.ObservePass("extraction", start)

	res, err := e.assist.Run(ctx, e.store)
	if res.Outcome != "idle" {
		e.metrics.LLMOutcome(res.Outcome)
	}
	e.metrics.EntityAdded("llm", res.Entities)
	e.metrics.SetGraphSize(e.store.Len())
	return res, err
}

// RunEnrichment recomputes derived node and edge fields and the metadata
// summary. Unless force is set, a pass soon after the previous one is
// skipped and RunEnrichment returns false.
func (e *Engine) RunEnrichment(force bool) bool {
	start := time.Now()
	if !e.enricher.Run(e.store, e.signals, force) {
		return false
	}
	md := enrich.ComputeMetadata(e.store, e.signals, e.now())
	e.mu.Lock()
	e.metadata = md
	e.mu.Unlock()
	e.metrics.ObservePass("enrichment", start)
	return true
}

// RunMaintenance runs decay, cleanup and cross-referencing.
func (e *Engine) RunMaintenance(ctx context.Context) maintain.Report {
	return e.maintainer.Run(ctx)
}

// Persisted keys.
const (
	keyNodes    = "graph/nodes"
	keyEdges    = "graph/edges"
	keySignals  = "signals"
	keyMetadata = "metadata"
	keyCursor   = "extract/cursor"
	keyFeed     = "feed/offsets"
)

var persistedKeys = []string{keyNodes, keyEdges, keySignals, keyMetadata, keyCursor, keyFeed}

// Persist writes a full snapshot of the engine state in one transaction.
// Without a database it does nothing.
func (e *Engine) Persist(ctx context.Context) error {
	if e.db == nil {
		return nil
	}
	start := time.Now()
	snap := e.store.Snapshot()
	values := map[string]any{
		keyNodes:    snap.Nodes,
		keyEdges:    snap.Edges,
		keySignals:  e.signals.State(),
		keyMetadata: e.Metadata(),
		keyCursor:   e.cursor(),
	}
	if offsets := e.feedOffsets(); offsets != nil {
		values[keyFeed] = offsets
	}
	entries := make(map[string][]byte, len(values))
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		entries[key] = data
	}
	if err := e.db.PutMany(ctx, entries); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	e.metrics.ObservePass("persistence", start)
	e.log.Debug("persisted", zap.Int("nodes", len(snap.Nodes)), zap.Int("edges", len(snap.Edges)))
	return nil
}

// Load restores state written by Persist. A value that fails to decode is
// logged and treated as empty; only storage errors are returned.
func (e *Engine) Load(ctx context.Context) error {
	if e.db == nil {
		return nil
	}
	var (
		snap   graph.Snapshot
		state  enrich.SignalState
		md     enrich.Metadata
		cursor extract.Cursor
		feed   map[string]int64
	)
	targets := map[string]any{
		keyNodes:    &snap.Nodes,
		keyEdges:    &snap.Edges,
		keySignals:  &state,
		keyMetadata: &md,
		keyCursor:   &cursor,
		keyFeed:     &feed,
	}
	for _, key := range persistedKeys {
		data, err := e.db.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		if err := json.Unmarshal(data, targets[key]); err != nil {
			e.log.Warn("discarding malformed state", zap.String("key", key), zap.Error(err))
			resetTarget(targets[key])
		}
	}

	nodes, edges := e.store.Restore(snap)
	e.signals.Restore(state)
	e.mu.Lock()
	e.metadata = md
	e.mu.Unlock()
	if e.assist != nil {
		e.assist.SetCursor(cursor)
	}
	if r, ok := e.feed.(reloader); ok {
		r.Resume(feed)
	}
	e.metrics.SetGraphSize(nodes, edges)
	e.log.Info("state loaded", zap.Int("nodes", nodes), zap.Int("edges", edges))
	return nil
}

func resetTarget(v any) {
	switch t := v.(type) {
	case *[]graph.Node:
		*t = nil
	case *[]graph.EdgeRow:
		*t = nil
	case *enrich.SignalState:
		*t = enrich.SignalState{}
	case *enrich.Metadata:
		*t = enrich.Metadata{}
	case *extract.Cursor:
		*t = extract.Cursor{}
	case *map[string]int64:
		*t = nil
	}
}

// Reset wipes the graph, signals, buffered feed and persisted state. A
// file-backed feed skips past everything already written so it is not
// ingested again.
func (e *Engine) Reset(ctx context.Context) error {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	e.store.Reset()
	e.signals.Reset()
	e.tracker.Reset()
	var errs []error
	if r, ok := e.feed.(reloader); ok {
		if err := r.Skip(); err != nil {
			errs = append(errs, fmt.Errorf("skip feed: %w", err))
		}
	} else {
		e.feed.Reset()
	}
	if e.assist != nil {
		e.assist.SetCursor(extract.Cursor{})
	}
	e.mu.Lock()
	e.metadata = enrich.Metadata{}
	e.mu.Unlock()
	if e.db != nil {
		if err := e.db.Delete(ctx, persistedKeys...); err != nil {
			errs = append(errs, err)
		}
		// Keep the skipped positions so a restart does not replay them.
		if offsets := e.feedOffsets(); len(offsets) > 0 {
			if data, err := json.Marshal(offsets); err == nil {
				errs = append(errs, e.db.Put(ctx, keyFeed, data))
			}
		}
	}
	e.metrics.SetGraphSize(0, 0)
	e.log.Info("all data cleared")
	return errors.Join(errs...)
}

// feedOffsets is nil for feeds that are not file-backed.
func (e *Engine) feedOffsets() map[string]int64 {
	if r, ok := e.feed.(reloader); ok {
		return r.Offsets()
	}
	return nil
}

func (e *Engine) cursor() extract.Cursor {
	if e.assist == nil {
		return extract.Cursor{}
	}
	return e.assist.Cursor()
}
