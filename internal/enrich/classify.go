package enrich

import (
	"net/url"
	"sort"
	"strings"

	"github.com/lazypower/constellation/internal/graph"
)

var appCategories = map[string]graph.Category{
	// work
	"code": graph.CategoryWork, "visual studio code": graph.CategoryWork, "cursor": graph.CategoryWork,
	"xcode": graph.CategoryWork, "intellij": graph.CategoryWork, "goland": graph.CategoryWork,
	"pycharm": graph.CategoryWork, "zed": graph.CategoryWork, "vim": graph.CategoryWork,
	"terminal": graph.CategoryWork, "iterm": graph.CategoryWork, "warp": graph.CategoryWork,
	"ghostty": graph.CategoryWork, "figma": graph.CategoryWork, "linear": graph.CategoryWork,
	"jira": graph.CategoryWork, "slack": graph.CategoryWork, "zoom": graph.CategoryWork,
	"microsoft teams": graph.CategoryWork, "outlook": graph.CategoryWork, "excel": graph.CategoryWork,
	"word": graph.CategoryWork, "powerpoint": graph.CategoryWork, "keynote": graph.CategoryWork,
	"numbers": graph.CategoryWork, "docker": graph.CategoryWork, "postman": graph.CategoryWork,
	"notion": graph.CategoryWork,

	// learning
	"anki": graph.CategoryLearning, "kindle": graph.CategoryLearning, "books": graph.CategoryLearning,
	"dictionary": graph.CategoryLearning, "obsidian": graph.CategoryLearning,

	// social
	"messages": graph.CategorySocial, "whatsapp": graph.CategorySocial, "telegram": graph.CategorySocial,
	"signal": graph.CategorySocial, "discord": graph.CategorySocial, "messenger": graph.CategorySocial,
	"facetime": graph.CategorySocial,

	// entertainment
	"spotify": graph.CategoryEntertainment, "music": graph.CategoryEntertainment, "tv": graph.CategoryEntertainment,
	"netflix": graph.CategoryEntertainment, "vlc": graph.CategoryEntertainment, "iina": graph.CategoryEntertainment,
	"steam": graph.CategoryEntertainment, "podcasts": graph.CategoryEntertainment,

	// personal
	"calendar": graph.CategoryPersonal, "photos": graph.CategoryPersonal, "notes": graph.CategoryPersonal,
	"reminders": graph.CategoryPersonal, "mail": graph.CategoryPersonal, "finder": graph.CategoryPersonal,
}

var urlCategories = map[string]graph.Category{
	"github.com": graph.CategoryWork, "gitlab.com": graph.CategoryWork, "bitbucket.org": graph.CategoryWork,
	"atlassian.net": graph.CategoryWork, "linear.app": graph.CategoryWork, "figma.com": graph.CategoryWork,
	"notion.so": graph.CategoryWork, "app.slack.com": graph.CategoryWork, "docs.google.com": graph.CategoryWork,
	"vercel.com": graph.CategoryWork, "console.aws.amazon.com": graph.CategoryWork,

	"stackoverflow.com": graph.CategoryLearning, "developer.mozilla.org": graph.CategoryLearning,
	"wikipedia.org": graph.CategoryLearning, "coursera.org": graph.CategoryLearning, "udemy.com": graph.CategoryLearning,
	"khanacademy.org": graph.CategoryLearning, "arxiv.org": graph.CategoryLearning, "medium.com": graph.CategoryLearning,
	"pkg.go.dev": graph.CategoryLearning, "docs.": graph.CategoryLearning, "/docs": graph.CategoryLearning,
	"dev.to": graph.CategoryLearning,

	"twitter.com": graph.CategorySocial, "x.com": graph.CategorySocial, "instagram.com": graph.CategorySocial,
	"facebook.com": graph.CategorySocial, "linkedin.com": graph.CategorySocial, "reddit.com": graph.CategorySocial,
	"web.whatsapp.com": graph.CategorySocial, "discord.com": graph.CategorySocial, "messenger.com": graph.CategorySocial,

	"youtube.com": graph.CategoryEntertainment, "netflix.com": graph.CategoryEntertainment,
	"twitch.tv": graph.CategoryEntertainment, "open.spotify.com": graph.CategoryEntertainment,
	"primevideo.com": graph.CategoryEntertainment, "disneyplus.com": graph.CategoryEntertainment,

	"amazon.com": graph.CategoryPersonal, "calendar.google.com": graph.CategoryPersonal,
	"mail.google.com": graph.CategoryPersonal, "airbnb.com": graph.CategoryPersonal,
	"booking.com": graph.CategoryPersonal,
}

type rule struct {
	pattern  string
	category graph.Category
}

// Classifier maps app names and URLs to activity categories. Patterns are
// case-insensitive and tried longest first.
type Classifier struct {
	apps []rule
	urls []rule
}

// NewClassifier builds a classifier from the built-in tables plus
// overrides. An override key containing "." or "/" is a URL pattern;
// anything else is an app pattern. Unknown categories are ignored.
func NewClassifier(overrides map[string]string) *Classifier {
	apps := make(map[string]graph.Category, len(appCategories))
	for k, v := range appCategories {
		apps[k] = v
	}
	urls := make(map[string]graph.Category, len(urlCategories))
	for k, v := range urlCategories {
		urls[k] = v
	}
	for k, v := range overrides {
		cat, ok := ParseCategory(v)
		k = strings.ToLower(strings.TrimSpace(k))
		if !ok || k == "" {
			continue
		}
		if strings.ContainsAny(k, "./") {
			urls[k] = cat
		} else {
			apps[k] = cat
		}
	}
	return &Classifier{apps: sortRules(apps), urls: sortRules(urls)}
}

func sortRules(m map[string]graph.Category) []rule {
	out := make([]rule, 0, len(m))
	for k, v := range m {
		out = append(out, rule{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].pattern) != len(out[j].pattern) {
			return len(out[i].pattern) > len(out[j].pattern)
		}
		return out[i].pattern < out[j].pattern
	})
	return out
}

// ParseCategory returns the Category named by s.
func ParseCategory(s string) (graph.Category, bool) {
	c := graph.Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case graph.CategoryWork, graph.CategoryLearning, graph.CategorySocial,
		graph.CategoryEntertainment, graph.CategoryPersonal, graph.CategoryUnknown:
		return c, true
	}
	return "", false
}

// Classify returns the category for an activity. The URL wins when it
// matches anything.
func (c *Classifier) Classify(app, rawURL string) graph.Category {
	if cat := c.ClassifyURL(rawURL); cat != graph.CategoryUnknown {
		return cat
	}
	return c.ClassifyApp(app)
}

func (c *Classifier) ClassifyApp(app string) graph.Category {
	app = strings.ToLower(strings.TrimSpace(app))
	if app == "" {
		return graph.CategoryUnknown
	}
	// Exact names win over word matches.
	for _, r := range c.apps {
		if r.pattern == app {
			return r.category
		}
	}
	for _, r := range c.apps {
		if containsWord(app, r.pattern) {
			return r.category
		}
	}
	return graph.CategoryUnknown
}

// ClassifyURL matches domain patterns against the host and its parent
// domains; patterns containing "/" or ending in "." match anywhere in
// the URL.
func (c *Classifier) ClassifyURL(raw string) graph.Category {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return graph.CategoryUnknown
	}
	host := hostOf(raw)
	for _, r := range c.urls {
		if strings.Contains(r.pattern, "/") || strings.HasSuffix(r.pattern, ".") {
			if strings.Contains(raw, r.pattern) {
				return r.category
			}
			continue
		}
		if host == r.pattern || strings.HasSuffix(host, "."+r.pattern) {
			return r.category
		}
	}
	return graph.CategoryUnknown
}

func hostOf(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// ClassifyContext classifies a node context, which is either a domain or
// an app name.
func (c *Classifier) ClassifyContext(ctx string) (graph.Category, bool) {
	if isDomain(ctx) {
		return c.ClassifyURL(ctx), true
	}
	return c.ClassifyApp(ctx), false
}

func isDomain(s string) bool {
	return strings.Contains(s, ".") && !strings.ContainsAny(s, " \t")
}

// containsWord reports whether pattern occurs in s on word boundaries.
func containsWord(s, pattern string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], pattern)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(pattern)
		if (start == 0 || s[start-1] == ' ') && (end == len(s) || s[end] == ' ') {
			return true
		}
		i = start + 1
	}
}
