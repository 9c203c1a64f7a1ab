package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/lazypower/constellation/internal/activity"
	"github.com/lazypower/constellation/internal/graph"
)

// Candidate is an entity proposed by an extractor.
type Candidate struct {
	Label  string           `validate:"required,min=2,max=80"`
	Type   graph.EntityType `validate:"required,oneof=person topic app content place project goal skill"`
	Source string
}

var genericTitles = map[string]bool{
	"loading": true, "loading...": true, "untitled": true, "new tab": true,
	"new window": true, "home": true, "start page": true, "blank": true,
	"about:blank": true, "settings": true, "welcome": true, "desktop": true,
	"new incognito tab": true, "private browsing": true, "untitled document": true,
}

var searchEngines = map[string]bool{
	"google.com": true, "bing.com": true, "duckduckgo.com": true, "yahoo.com": true,
	"search.yahoo.com": true, "baidu.com": true, "yandex.ru": true, "yandex.com": true,
	"ecosia.org": true, "search.brave.com": true, "startpage.com": true, "kagi.com": true,
}

var messagingApps = map[string]bool{
	"slack": true, "discord": true, "whatsapp": true, "messages": true,
	"telegram": true, "signal": true, "microsoft teams": true, "teams": true,
	"messenger": true,
}

var messagingHosts = map[string]string{
	"app.slack.com":       "slack",
	"discord.com":         "discord",
	"web.whatsapp.com":    "whatsapp",
	"web.telegram.org":    "telegram",
	"teams.microsoft.com": "teams",
	"messenger.com":       "messenger",
}

// Path segments that are site sections rather than accounts.
var reservedPaths = map[string]bool{
	"home": true, "explore": true, "notifications": true, "messages": true,
	"settings": true, "search": true, "compose": true, "i": true, "login": true,
	"logout": true, "signup": true, "about": true, "help": true, "new": true,
	"orgs": true, "organizations": true, "topics": true, "trending": true,
	"marketplace": true, "pulls": true, "issues": true, "sponsors": true,
	"features": true, "pricing": true, "accounts": true, "direct": true,
	"reels": true, "stories": true, "feed": true, "jobs": true, "watch": true,
}

var (
	youtubeSuffixRe = regexp.MustCompile(`\s*[-–—|]\s*YouTube\s*$`)
	unreadPrefixRe  = regexp.MustCompile(`^\(\d+\+?\)\s*`)
	mentionRe       = regexp.MustCompile(`(?:^|[\s(,;])@([A-Za-z0-9_][A-Za-z0-9_.-]{1,30})`)
	titleSplitRe    = regexp.MustCompile(`\s+[-–—|]\s+`)
	dmMarkerRe      = regexp.MustCompile(`\s*\((?:DM|Direct Message|Channel|Private)\)\s*$`)
	linkedinIDRe    = regexp.MustCompile(`-[0-9a-f]{6,}$`)
)

// Rules is the heuristic extractor. The zero value is ready to use.
type Rules struct{}

// Extract proposes candidates from one activity entry.
func (Rules) Extract(e activity.Entry) []Candidate {
	var out []Candidate
	add := func(label string, t graph.EntityType) {
		label = strings.TrimSpace(label)
		if label != "" {
			out = append(out, Candidate{Label: label, Type: t, Source: "rules"})
		}
	}

	app := strings.TrimSpace(e.App)
	if app != "" {
		add(app, graph.TypeApp)
	}

	host, segments := splitURL(e.URL)
	if host != "" && !searchEngines[host] && !isLocal(host) {
		add(host, graph.TypeContent)
		for _, c := range socialCandidates(host, segments) {
			add(c.Label, c.Type)
		}
	}

	title := unreadPrefixRe.ReplaceAllString(strings.TrimSpace(e.Title), "")
	if isGeneric(title) {
		return out
	}

	if strings.Contains(host, "youtube.com") || youtubeSuffixRe.MatchString(title) {
		if video := strings.TrimSpace(youtubeSuffixRe.ReplaceAllString(title, "")); video != "" && !isGeneric(video) && !strings.EqualFold(video, "youtube") {
			add(video, graph.TypeContent)
		}
	}

	if messagingKind(app, host) != "" {
		if label, t, ok := contactFromTitle(title, app); ok {
			add(label, t)
		}
	}

	for _, text := range []string{title, e.Summary} {
		for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
			add("@"+strings.TrimRight(m[1], ".-"), graph.TypePerson)
		}
	}
	return out
}

func isGeneric(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	return len(t) < 3 || genericTitles[t]
}

func isLocal(host string) bool {
	return host == "localhost" || strings.HasSuffix(host, ".local") || strings.IndexFunc(host, unicode.IsLetter) < 0
}

// splitURL returns the lowercased host without "www." and the non-empty
// path segments.
func splitURL(raw string) (string, []string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", nil
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return host, segs
}

// Domain returns the normalized host of a URL, or "".
func Domain(raw string) string {
	host, _ := splitURL(raw)
	return host
}

func socialCandidates(host string, segs []string) []Candidate {
	if len(segs) == 0 {
		return nil
	}
	first := segs[0]
	handle := func(s string) bool {
		return !reservedPaths[strings.ToLower(s)] && !strings.ContainsAny(s, ".?=")
	}

	switch host {
	case "instagram.com", "x.com", "twitter.com":
		if handle(first) {
			return []Candidate{{Label: "@" + first, Type: graph.TypePerson}}
		}
	case "github.com":
		if !handle(first) {
			return nil
		}
		out := []Candidate{{Label: "@" + first, Type: graph.TypePerson}}
		if len(segs) >= 2 && handle(segs[1]) {
			out = append(out, Candidate{Label: first + "/" + segs[1], Type: graph.TypeProject})
		}
		return out
	case "linkedin.com":
		if first == "in" && len(segs) >= 2 {
			name := linkedinIDRe.ReplaceAllString(segs[1], "")
			return []Candidate{{Label: strings.ReplaceAll(name, "-", " "), Type: graph.TypePerson}}
		}
	case "reddit.com", "old.reddit.com":
		if len(segs) >= 2 {
			switch first {
			case "r":
				return []Candidate{{Label: "r/" + segs[1], Type: graph.TypeTopic}}
			case "u", "user":
				return []Candidate{{Label: "u/" + segs[1], Type: graph.TypePerson}}
			}
		}
	}
	return nil
}

func messagingKind(app, host string) string {
	if k, ok := messagingHosts[host]; ok {
		return k
	}
	a := strings.ToLower(app)
	if messagingApps[a] {
		return a
	}
	return ""
}

// contactFromTitle reads the conversation name off a messaging window
// title such as "Ana Lima (DM) - Acme - Slack" or "#design | Acme - Discord".
func contactFromTitle(title, app string) (string, graph.EntityType, bool) {
	parts := titleSplitRe.Split(title, -1)
	// Drop the app name wherever it appears.
	kept := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !strings.EqualFold(p, app) && !messagingApps[strings.ToLower(p)] {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "", "", false
	}
	name := dmMarkerRe.ReplaceAllString(kept[0], "")
	name = strings.TrimPrefix(name, "Chat with ")

	switch {
	case strings.HasPrefix(name, "#"):
		return name, graph.TypeTopic, len(name) > 2
	case strings.HasPrefix(name, "@"):
		return name, graph.TypePerson, len(name) > 2
	case looksLikeName(name):
		return name, graph.TypePerson, true
	}
	return "", "", false
}

// looksLikeName accepts one to four capitalized words of letters.
func looksLikeName(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		r := []rune(w)
		if !unicode.IsUpper(r[0]) {
			return false
		}
		for _, c := range r {
			if !unicode.IsLetter(c) && c != '\'' && c != '-' && c != '.' {
				return false
			}
		}
	}
	return !genericTitles[strings.ToLower(s)]
}
