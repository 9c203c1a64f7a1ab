package maintain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/enrich"
	"github.com/lazypower/constellation/internal/graph"
	"github.com/lazypower/constellation/internal/llm"
	"github.com/lazypower/constellation/internal/logging"
)

// maxCleanupBatch bounds how many nodes one classification request carries.
const maxCleanupBatch = 50

var validate = validator.New()

type mergeGroup struct {
	Target  string   `json:"target" validate:"required"`
	Sources []string `json:"sources" validate:"required,min=1,dive,required"`
}

type cleanupReply struct {
	Keep   []string
	Remove []string
	Merge  []mergeGroup
}

// CleanupResult reports one cleanup pass.
type CleanupResult struct {
	Candidates int    `json:"candidates"`
	Kept       int    `json:"kept"`
	Removed    int    `json:"removed"`
	Merged     int    `json:"merged"`
	Stale      int    `json:"stale"`   // referenced nodes that vanished in the meantime
	Ignored    int    `json:"ignored"` // ids that were never offered
	Outcome    string `json:"outcome"`
}

// Cleaner asks a text-generation model to sort unverified nodes into
// signal and noise, then applies its verdict.
type Cleaner struct {
	client  llm.Client
	signals *enrich.Signals
	timeout time.Duration
	log     *zap.Logger
}

// NewCleaner returns a Cleaner. signals may be nil.
func NewCleaner(client llm.Client, signals *enrich.Signals, timeout time.Duration, log *zap.Logger) *Cleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{client: client, signals: signals, timeout: timeout, log: log}
}

// candidates returns the heaviest unverified non-app nodes.
func candidates(s *graph.Store) []graph.Node {
	var out []graph.Node
	for _, n := range s.Nodes() {
		if !n.Verified && n.Type != graph.TypeApp {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if len(out) > maxCleanupBatch {
		out = out[:maxCleanupBatch]
	}
	return out
}

// Run classifies one batch. The store lock is not held during the request,
// so every id in the reply is checked again before it is acted on.
func (c *Cleaner) Run(ctx context.Context, s *graph.Store) (CleanupResult, error) {
	batch := candidates(s)
	res := CleanupResult{Candidates: len(batch)}
	if len(batch) == 0 {
		res.Outcome = "idle"
		return res, nil
	}

	offered := make(map[string]bool, len(batch))
	items := make([]llm.CleanupItem, 0, len(batch))
	for _, n := range batch {
		offered[n.ID] = true
		items = append(items, llm.CleanupItem{
			ID:       n.ID,
			Label:    n.Label,
			Type:     string(n.Type),
			Weight:   n.Weight,
			Contexts: n.Contexts,
		})
	}

	reply, err := llm.TryComplete(ctx, c.client, llm.UserRequest(llm.CleanupSystem, llm.CleanupPrompt(items)), c.timeout)
	res.Outcome = llm.Outcome(err)
	if err != nil {
		c.log.Warn("cleanup skipped", zap.String("outcome", res.Outcome), zap.Error(err))
		return res, err
	}
	verdict, err := parseCleanup(reply)
	if err != nil {
		res.Outcome = "malformed"
		c.log.Warn("unparseable cleanup reply", zap.String("reply", logging.Truncate(reply, 200)), zap.Error(err))
		return res, err
	}

	// resolve maps a reply reference to an offered id. Models sometimes
	// answer with labels instead of ids.
	resolve := func(ref string) (string, bool) {
		ref = strings.TrimSpace(ref)
		if offered[ref] {
			return ref, true
		}
		if id, ok := s.Resolve(ref); ok && offered[id] {
			return id, true
		}
		return "", false
	}

	for _, ref := range verdict.Remove {
		id, ok := resolve(ref)
		if !ok {
			res.Ignored++
			continue
		}
		if !s.RemoveNode(id) {
			res.Stale++
			continue
		}
		if c.signals != nil {
			c.signals.Forget(id)
		}
		res.Removed++
	}

	for _, g := range verdict.Merge {
		target, ok := s.Resolve(strings.TrimSpace(g.Target))
		if !ok {
			res.Stale++
			continue
		}
		var sources []string
		for _, ref := range g.Sources {
			id, ok := resolve(ref)
			switch {
			case !ok:
				res.Ignored++
			case id == target:
			default:
				if _, alive := s.Node(id); alive {
					sources = append(sources, id)
				} else {
					res.Stale++
				}
			}
		}
		if len(sources) == 0 || !s.Merge(target, sources) {
			continue
		}
		if c.signals != nil {
			c.signals.Merge(target, sources)
		}
		res.Merged += len(sources)
	}

	for _, ref := range verdict.Keep {
		id, ok := resolve(ref)
		if !ok {
			res.Ignored++
			continue
		}
		if s.SetVerified(id) {
			res.Kept++
		} else {
			res.Stale++
		}
	}

	c.log.Info("cleanup applied",
		zap.Int("candidates", res.Candidates),
		zap.Int("kept", res.Kept),
		zap.Int("removed", res.Removed),
		zap.Int("merged", res.Merged),
		zap.Int("stale", res.Stale))
	return res, nil
}

// parseCleanup reads {keep, remove, merge} from a free-form reply,
// dropping entries of the wrong shape rather than failing the whole reply.
func parseCleanup(reply string) (cleanupReply, error) {
	var raw struct {
		Keep   []json.RawMessage `json:"keep"`
		Remove []json.RawMessage `json:"remove"`
		Merge  []json.RawMessage `json:"merge"`
	}
	if err := llm.ExtractObject(reply, &raw); err != nil {
		return cleanupReply{}, fmt.Errorf("cleanup reply: %w", err)
	}

	var out cleanupReply
	var errs []error
	out.Keep, errs = appendStrings(out.Keep, raw.Keep, errs)
	out.Remove, errs = appendStrings(out.Remove, raw.Remove, errs)
	for _, m := range raw.Merge {
		var g mergeGroup
		if err := json.Unmarshal(m, &g); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := validate.Struct(g); err != nil {
			errs = append(errs, err)
			continue
		}
		out.Merge = append(out.Merge, g)
	}
	if len(errs) > 0 && len(out.Keep)+len(out.Remove)+len(out.Merge) == 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

func appendStrings(dst []string, raw []json.RawMessage, errs []error) ([]string, []error) {
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			errs = append(errs, err)
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			dst = append(dst, s)
		}
	}
	return dst, errs
}
