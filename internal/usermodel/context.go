package usermodel

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/graph"
)

// Intent is what the user seems to be doing.
type Intent string

const (
	IntentCreating      Intent = "creating"
	IntentCommunicating Intent = "communicating"
	IntentResearching   Intent = "researching"
	IntentConsuming     Intent = "consuming"
	IntentUnknown       Intent = "unknown"
)

const (
	focusWindow       = 30 * time.Minute
	switchesToNoFocus = 10
	maxContextLabels  = 5
)

var intentApps = []struct {
	intent Intent
	apps   []string
}{
	{IntentCreating, []string{"code", "visual studio code", "cursor", "xcode", "intellij", "goland", "pycharm", "zed", "vim", "terminal", "iterm", "iterm2", "warp", "ghostty", "figma", "sketch", "word", "pages", "excel", "numbers", "keynote", "powerpoint", "notion", "obsidian", "logic pro", "final cut pro", "photoshop"}},
	{IntentCommunicating, []string{"slack", "messages", "mail", "outlook", "zoom", "microsoft teams", "teams", "discord", "whatsapp", "telegram", "signal", "messenger", "facetime", "skype"}},
	{IntentConsuming, []string{"spotify", "music", "tv", "netflix", "vlc", "iina", "podcasts", "kindle", "books", "steam", "youtube"}},
}

// Checked against the lowercased url and title when the app says nothing.
var intentHints = []struct {
	intent Intent
	hints  []string
}{
	{IntentConsuming, []string{"youtube.com", "netflix.com", "twitch.tv", "open.spotify.com", "primevideo", "disneyplus", "reddit.com", "instagram.com", "tiktok.com", "x.com/home", "twitter.com/home", "- youtube"}},
	{IntentCommunicating, []string{"mail.google.com", "app.slack.com", "web.whatsapp.com", "discord.com/channels", "meet.google.com", "teams.microsoft.com", "outlook.office", "inbox"}},
	{IntentCreating, []string{"docs.google.com/document", "docs.google.com/spreadsheets", "figma.com/file", "figma.com/design", "/edit", "codepen.io", "replit.com", "compose", "draft"}},
	{IntentResearching, []string{"google.com/search", "duckduckgo.com", "bing.com/search", "stackoverflow.com", "wikipedia.org", "developer.mozilla.org", "pkg.go.dev", "arxiv.org", "docs.", "/docs", "documentation", "how to", "github.com", "search"}},
}

// ClassifyIntent guesses intent from the app name, then from url and
// title keywords.
func ClassifyIntent(app, title, url string) Intent {
	a := strings.ToLower(strings.TrimSpace(app))
	for _, group := range intentApps {
		for _, name := range group.apps {
			if hasWord(a, name) {
				return group.intent
			}
		}
	}
	text := strings.ToLower(url + " " + title)
	for _, group := range intentHints {
		for _, h := range group.hints {
			if strings.Contains(text, h) {
				return group.intent
			}
		}
	}
	return IntentUnknown
}

// hasWord reports whether word occurs in s on space boundaries.
func hasWord(s, word string) bool {
	for i := 0; i+len(word) <= len(s); {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		if (start == 0 || s[start-1] == ' ') && (end == len(s) || s[end] == ' ') {
			return true
		}
		i = start + 1
	}
	return false
}

// Context is a snapshot of what the user is doing right now.
type Context struct {
	App            string         `json:"app"`
	Title          string         `json:"title"`
	URL            string         `json:"url,omitempty"`
	Intent         Intent         `json:"intent"`
	Category       graph.Category `json:"category"`
	FocusDepth     float64        `json:"focusDepth"`
	RecentSwitches int            `json:"recentSwitches"`
	Entities       []string       `json:"entities"`
	Since          time.Time      `json:"since,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt,omitempty"`
}

// CurrentContext describes the latest activity entry. Focus depth falls
// by a tenth for every app switch in the last 30 minutes.
func (b *Builder) CurrentContext() Context {
	now := b.now()
	c := Context{Intent: IntentUnknown, Category: graph.CategoryUnknown, FocusDepth: 1, Entities: []string{}}
	if b.signals != nil {
		c.RecentSwitches = b.signals.SwitchesSince(now.Add(-focusWindow))
		c.FocusDepth = max(0, 1-float64(c.RecentSwitches)/switchesToNoFocus)
	}

	entries := b.activities()
	if len(entries) == 0 {
		return c
	}
	last := entries[len(entries)-1]
	c.App, c.Title, c.URL = last.App, last.Title, last.URL
	c.Intent = ClassifyIntent(last.App, last.Title, last.URL)
	c.Category = b.classifier.Classify(last.App, last.URL)
	c.UpdatedAt = last.Timestamp

	c.Since = last.Timestamp
	for i := len(entries) - 2; i >= 0; i-- {
		if c.Since.Sub(entries[i].Timestamp) > blockGap {
			break
		}
		c.Since = entries[i].Timestamp
	}

	text := strings.ToLower(strings.Join([]string{last.Title, last.URL, last.Summary}, " "))
	for _, n := range b.nodesByWeight() {
		if len(c.Entities) == maxContextLabels {
			break
		}
		if mentions(text, n) {
			c.Entities = append(c.Entities, n.Label)
		}
	}
	return c
}

// nodesByWeight returns every non-app node, heaviest first.
func (b *Builder) nodesByWeight() []graph.Node {
	var out []graph.Node
	for _, n := range b.store.Nodes() {
		if n.Type != graph.TypeApp {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// mentions reports whether lowercased text contains the node label. Very
// short labels would match almost anything and are skipped.
func mentions(text string, n graph.Node) bool {
	label := strings.ToLower(graph.Bare(n.Label))
	if utf8.RuneCountInString(label) < minMatchLen {
		return false
	}
	return strings.Contains(text, label)
}

// activitiesBetween returns entries in [from, to], oldest first. A zero to
// means no upper bound.
func activitiesBetween(entries []activity.Entry, from, to time.Time) []activity.Entry {
	var out []activity.Entry
	for _, e := range entries {
		if e.Timestamp.Before(from) || (!to.IsZero() && e.Timestamp.After(to)) {
			continue
		}
		out = append(out, e)
	}
	return out
}
