package enrich

import (
	"sort"
	"time"

	"github.com/lazypower/constellation/internal/graph"
)

const (
	peakHourCount = 4
	peakDayCount  = 3
	focusCount    = 5
)

// Metadata is a derived summary of the graph and signals.
type Metadata struct {
	PeakHours            []int                      `json:"peakHours"`
	PeakDays             []time.Weekday             `json:"peakDays"`
	CurrentFocus         []string                   `json:"currentFocus"`
	AvgSessionMinutes    float64                    `json:"avgSessionMinutes"`
	ContextSwitchRate    float64                    `json:"contextSwitchRate"` // per hour
	CategoryDistribution map[graph.Category]float64 `json:"categoryDistribution"`
	ComputedAt           time.Time                  `json:"computedAt"`
}

// ComputeMetadata summarizes s and sig as of now. Run an enrichment pass
// first; focus and categories read the derived node fields.
func ComputeMetadata(s *graph.Store, sig *Signals, now time.Time) Metadata {
	st := sig.State()
	md := Metadata{
		PeakHours:            topBuckets(st.Hourly[:], peakHourCount),
		CategoryDistribution: make(map[graph.Category]float64),
		ComputedAt:           now,
	}
	for _, d := range topBuckets(st.Daily[:], peakDayCount) {
		md.PeakDays = append(md.PeakDays, time.Weekday(d))
	}

	if len(st.Durations) > 0 {
		var sum int64
		for _, d := range st.Durations {
			sum += d
		}
		md.AvgSessionMinutes = float64(sum) / float64(len(st.Durations)) / float64(time.Minute.Milliseconds())
	}

	cutoff := now.Add(-switchWindow)
	for _, t := range st.Switches {
		if t.After(cutoff) {
			md.ContextSwitchRate++
		}
	}
	md.ContextSwitchRate /= switchWindow.Hours()

	nodes := s.Nodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Salience != nodes[j].Salience {
			return nodes[i].Salience > nodes[j].Salience
		}
		return nodes[i].Weight > nodes[j].Weight
	})
	for _, n := range nodes {
		if len(md.CurrentFocus) == focusCount || n.Salience <= 0 {
			break
		}
		md.CurrentFocus = append(md.CurrentFocus, n.ID)
	}

	var total int64
	for _, n := range nodes {
		if n.EngagementMs <= 0 {
			continue
		}
		c := n.PrimaryContext
		if c == "" {
			c = graph.CategoryUnknown
		}
		md.CategoryDistribution[c] += float64(n.EngagementMs)
		total += n.EngagementMs
	}
	for c := range md.CategoryDistribution {
		md.CategoryDistribution[c] /= float64(total)
	}
	return md
}

// topBuckets returns the indexes of the n largest non-zero buckets,
// largest first, lower index first on ties.
func topBuckets(hist []int64, n int) []int {
	idx := make([]int, 0, len(hist))
	for i, v := range hist {
		if v > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return hist[idx[a]] > hist[idx[b]] })
	if len(idx) > n {
		idx = idx[:n]
	}
	return idx
}
