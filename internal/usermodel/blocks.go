package usermodel

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/graph"
)

const (
	// blockGap is the longest pause that still continues a block.
	blockGap    = 5 * time.Minute
	minMatchLen = 3
	maxFocusApp = 5
)

// Block is a contiguous run of activity treated as one unit of work.
type Block struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Intent     Intent    `json:"intent"`
	Apps       []string  `json:"apps"`
	Entities   []string  `json:"entities"`
	People     []string  `json:"people"`
	Project    string    `json:"project,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Minutes    float64   `json:"minutes"`
	Entries    int       `json:"entries"`
	FocusScore float64   `json:"focusScore"`
}

// Segment sorts entries by time and splits them wherever consecutive
// entries are more than gap apart.
func Segment(entries []activity.Entry, gap time.Duration) [][]activity.Entry {
	if len(entries) == 0 {
		return nil
	}
	sorted := append([]activity.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var out [][]activity.Entry
	start := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Timestamp.Sub(sorted[i-1].Timestamp) > gap {
			out = append(out, sorted[start:i])
			start = i
		}
	}
	return append(out, sorted[start:])
}

// TaskBlocks segments the activity in [from, to] and labels each block.
// Entities, people and the project are backfilled by matching graph labels
// against the block's text.
func (b *Builder) TaskBlocks(from, to time.Time) []Block {
	segments := Segment(activitiesBetween(b.activities(), from, to), blockGap)
	out := make([]Block, 0, len(segments))
	if len(segments) == 0 {
		return out
	}
	nodes := b.nodesByWeight()
	for _, seg := range segments {
		out = append(out, newBlock(seg, nodes))
	}
	return out
}

func newBlock(seg []activity.Entry, nodes []graph.Node) Block {
	first, last := seg[0], seg[len(seg)-1]
	blk := Block{
		ID:       blockID(first.Timestamp),
		Apps:     []string{},
		Entities: []string{},
		People:   []string{},
		Start:    first.Timestamp,
		End:      last.Timestamp,
		Minutes:  last.Timestamp.Sub(first.Timestamp).Minutes(),
		Entries:  len(seg),
	}

	counts := make(map[string]int)
	votes := make(map[Intent]int)
	blk.Intent = IntentUnknown
	var text strings.Builder
	for _, e := range seg {
		if app := strings.TrimSpace(e.App); app != "" {
			if counts[app] == 0 {
				blk.Apps = append(blk.Apps, app)
			}
			counts[app]++
		}
		if in := ClassifyIntent(e.App, e.Title, e.URL); in != IntentUnknown {
			votes[in]++
			if votes[in] >= votes[blk.Intent] {
				blk.Intent = in
			}
		}
		text.WriteString(strings.ToLower(strings.Join([]string{e.Title, e.URL, e.Summary}, " ")))
		text.WriteByte('\n')
	}

	dominant := ""
	for _, app := range blk.Apps {
		if counts[app] > counts[dominant] {
			dominant = app
		}
	}
	switch {
	case dominant != "" && last.Title != "":
		blk.Label = dominant + ": " + last.Title
	case dominant != "":
		blk.Label = dominant
	default:
		blk.Label = last.Title
	}

	blk.FocusScore = max(0, 1-float64(len(blk.Apps)-1)/maxFocusApp)
	if len(blk.Apps) == 0 {
		blk.FocusScore = 1
	}

	haystack := text.String()
	for _, n := range nodes {
		if !mentions(haystack, n) {
			continue
		}
		blk.Entities = append(blk.Entities, n.Label)
		switch n.Type {
		case graph.TypePerson:
			blk.People = append(blk.People, n.Label)
		case graph.TypeProject:
			if blk.Project == "" {
				blk.Project = n.Label
			}
		}
	}
	return blk
}

// blockID is stable for a given start time, so the same block keeps its id
// across requests.
func blockID(start time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("constellation:block:"+start.UTC().Format(time.RFC3339Nano))).String()
}
