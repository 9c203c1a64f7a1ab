package extract

import (
	"strings"

	"go.uber.org/zap"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/graph"
)

// Extractor runs the synchronous extractors over activity entries and
// writes what they find into a graph store.
type Extractor struct {
	rules Rules
	ner   Recognizer
	log   *zap.Logger
}

// New returns an Extractor. ner may be nil to disable summary NER.
func New(ner Recognizer, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{ner: ner, log: log}
}

// Candidates returns the deduplicated, valid candidates for e.
func (x *Extractor) Candidates(e activity.Entry) []Candidate {
	cands := x.rules.Extract(e)
	if x.ner != nil && strings.TrimSpace(e.Summary) != "" {
		cands = append(cands, x.ner.Recognize(e.Summary)...)
	}

	seen := make(map[string]bool, len(cands))
	out := cands[:0]
	for _, c := range cands {
		if !Valid(c) {
			continue
		}
		k := string(c.Type) + ":" + graph.Normalize(c.Label)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// Apply adds every candidate found in e to s. All of them share one
// co-occurrence hint, so entities seen together get linked. It returns
// the ids touched, in first-touch order.
func (x *Extractor) Apply(s *graph.Store, e activity.Entry) []string {
	occ := graph.Occurrence{Context: ContextOf(e), Hint: HintOf(e)}

	var ids []string
	touched := make(map[string]bool)
	for _, c := range x.Candidates(e) {
		id, ok := s.AddEntity(c.Label, c.Type, occ)
		if !ok {
			x.log.Debug("candidate rejected", zap.String("label", c.Label), zap.String("source", c.Source))
			continue
		}
		if !touched[id] {
			touched[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// ContextOf is the source context recorded for entities found in e: the
// domain when there is a URL, otherwise the app.
func ContextOf(e activity.Entry) string {
	if d := Domain(e.URL); d != "" {
		return d
	}
	return strings.TrimSpace(e.App)
}

// HintOf summarizes the window an entry came from. Entries from the same
// window share a hint.
func HintOf(e activity.Entry) string {
	app := strings.ToLower(strings.TrimSpace(e.App))
	title := strings.ToLower(strings.Join(strings.Fields(e.Title), " "))
	if app == "" && title == "" {
		return ""
	}
	return truncateClean(app+"|"+title, 160)
}
