package query

import (
	"sort"
	"strings"
	"time"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/enrich"
	"github.com/lazypower/constellation/internal/graph"
)

// Event kinds in a timeline.
const (
	KindActivity  = "activity"
	KindScreen    = "screen"
	KindClipboard = "clipboard"
	KindMusic     = "music"
)

// Event is one feed record on a merged timeline.
type Event struct {
	Kind      string    `json:"kind"`
	App       string    `json:"app,omitempty"`
	Title     string    `json:"title,omitempty"`
	URL       string    `json:"url,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Timeline merges every feed stream into one list of events in [from, to),
// oldest first. A zero to means no upper bound; limit keeps the newest
// events when positive.
func Timeline(feed activity.Source, from, to time.Time, limit int) []Event {
	out := []Event{}
	if feed == nil {
		return out
	}
	in := func(t time.Time) bool {
		return !t.Before(from) && (to.IsZero() || t.Before(to))
	}
	for _, e := range feed.Activities() {
		if in(e.Timestamp) {
			out = append(out, Event{Kind: KindActivity, App: e.App, Title: e.Title, URL: e.URL, Text: e.Summary, Timestamp: e.Timestamp})
		}
	}
	for _, s := range feed.Snapshots() {
		if in(s.Timestamp) {
			out = append(out, Event{Kind: KindScreen, App: s.App, Title: s.Title, URL: s.URL, Text: s.Summary, Timestamp: s.Timestamp})
		}
	}
	for _, c := range feed.Clipboard() {
		if in(c.Timestamp) {
			out = append(out, Event{Kind: KindClipboard, App: c.App, Text: c.Text, Timestamp: c.Timestamp})
		}
	}
	for _, t := range feed.Music() {
		if in(t.Timestamp) {
			title := t.Title
			if t.Artist != "" {
				title = t.Artist + " - " + t.Title
			}
			out = append(out, Event{Kind: KindMusic, App: t.App, Title: title, Timestamp: t.Timestamp})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

const (
	summaryApps     = 5
	summaryEntities = 10
)

// AppTime is the time credited to one app.
type AppTime struct {
	App     string         `json:"app"`
	Minutes float64        `json:"minutes"`
	Context graph.Category `json:"context"`
}

// EntityMentions is an entity and how many of the day's entries named it.
type EntityMentions struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Mentions int    `json:"mentions"`
}

// DaySummary condenses one calendar day of activity.
type DaySummary struct {
	Date          string                     `json:"date"`
	Entries       int                        `json:"entries"`
	ActiveMinutes float64                    `json:"activeMinutes"`
	FirstActive   time.Time                  `json:"firstActive,omitempty"`
	LastActive    time.Time                  `json:"lastActive,omitempty"`
	TopApps       []AppTime                  `json:"topApps"`
	TopEntities   []EntityMentions           `json:"topEntities"`
	Contexts      map[graph.Category]float64 `json:"contexts"` // minutes per category
	Clips         int                        `json:"clips"`
	Tracks        int                        `json:"tracks"`
}

// SummarizeDay summarizes the calendar day containing day, in day's
// location. Each entry is credited with the time until the next one,
// capped like engagement tracking. c may be nil.
func SummarizeDay(s *graph.Store, feed activity.Source, c *enrich.Classifier, day time.Time) DaySummary {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	sum := DaySummary{
		Date:        start.Format("2006-01-02"),
		TopApps:     []AppTime{},
		TopEntities: []EntityMentions{},
		Contexts:    make(map[graph.Category]float64),
	}
	if feed == nil {
		return sum
	}
	if c == nil {
		c = enrich.NewClassifier(nil)
	}

	var entries []activity.Entry
	for _, e := range feed.Activities() {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
	sum.Entries = len(entries)
	if len(entries) > 0 {
		sum.FirstActive = entries[0].Timestamp
		sum.LastActive = entries[len(entries)-1].Timestamp
	}

	apps := make(map[string]*AppTime)
	var order []string
	var text strings.Builder
	for i, e := range entries {
		var dwell time.Duration
		if i+1 < len(entries) {
			dwell = min(entries[i+1].Timestamp.Sub(e.Timestamp), enrich.MaxDwell)
		}
		minutes := dwell.Minutes()
		sum.ActiveMinutes += minutes
		cat := c.Classify(e.App, e.URL)
		sum.Contexts[cat] += minutes

		name := strings.TrimSpace(e.App)
		if name != "" {
			a := apps[name]
			if a == nil {
				a = &AppTime{App: name, Context: c.ClassifyApp(name)}
				apps[name] = a
				order = append(order, name)
			}
			a.Minutes += minutes
		}
		text.WriteString(strings.ToLower(strings.Join([]string{e.Title, e.URL, e.Summary}, " ")))
		text.WriteByte('\n')
	}
	for _, name := range order {
		sum.TopApps = append(sum.TopApps, *apps[name])
	}
	sort.SliceStable(sum.TopApps, func(i, j int) bool { return sum.TopApps[i].Minutes > sum.TopApps[j].Minutes })
	if len(sum.TopApps) > summaryApps {
		sum.TopApps = sum.TopApps[:summaryApps]
	}

	if s != nil && text.Len() > 0 {
		lines := strings.Split(text.String(), "\n")
		for _, n := range s.Nodes() {
			if n.Type == graph.TypeApp {
				continue
			}
			label := strings.ToLower(graph.Bare(n.Label))
			count := 0
			for _, l := range lines {
				if strings.Contains(l, label) {
					count++
				}
			}
			if count > 0 {
				sum.TopEntities = append(sum.TopEntities, EntityMentions{ID: n.ID, Label: n.Label, Type: string(n.Type), Mentions: count})
			}
		}
		sort.SliceStable(sum.TopEntities, func(i, j int) bool { return sum.TopEntities[i].Mentions > sum.TopEntities[j].Mentions })
		if len(sum.TopEntities) > summaryEntities {
			sum.TopEntities = sum.TopEntities[:summaryEntities]
		}
	}

	for _, cl := range feed.Clipboard() {
		if !cl.Timestamp.Before(start) && cl.Timestamp.Before(end) {
			sum.Clips++
		}
	}
	for _, t := range feed.Music() {
		if !t.Timestamp.Before(start) && t.Timestamp.Before(end) {
			sum.Tracks++
		}
	}
	return sum
}
