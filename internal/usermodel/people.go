package usermodel

import (
	"sort"
	"strings"
	"time"

	"github.com/lazypower/constellation/internal/graph"
)

// Relationship is how the user appears to know a person.
type Relationship string

const (
	RelationshipColleague Relationship = "colleague"
	RelationshipFriend    Relationship = "friend"
	RelationshipFamily    Relationship = "family"
	RelationshipContact   Relationship = "contact"
)

// Person is a person node with its inferred relationship.
type Person struct {
	ID           string       `json:"id"`
	Label        string       `json:"label"`
	Relationship Relationship `json:"relationship"`
	Channels     []string     `json:"channels"`
	Projects     []string     `json:"projects"`
	Salience     float64      `json:"salience"`
	Weight       int          `json:"weight"`
	EngagementMs int64        `json:"engagementMs"`
	LastSeen     time.Time    `json:"lastSeen"`
}

var relationKeywords = []struct {
	words []string
	rel   Relationship
}{
	{[]string{"family", "parent", "mother", "father", "sister", "brother", "sibling", "partner", "spouse", "wife", "husband"}, RelationshipFamily},
	{[]string{"friend"}, RelationshipFriend},
	{[]string{"work", "collab", "colleague", "team", "manag", "report", "review", "mentor", "client"}, RelationshipColleague},
}

// channelHints maps substrings of a context (app name or domain) to the
// channel it implies.
var channelHints = []struct{ hint, channel string }{
	{"slack", "slack"},
	{"discord", "discord"},
	{"whatsapp", "whatsapp"},
	{"telegram", "telegram"},
	{"signal", "signal"},
	{"messenger", "messenger"},
	{"messages", "messages"},
	{"teams", "teams"},
	{"zoom", "video"},
	{"facetime", "video"},
	{"meet.google", "video"},
	{"mail", "email"},
	{"outlook", "email"},
	{"linkedin", "linkedin"},
	{"github", "github"},
	{"twitter", "x"},
	{"instagram", "instagram"},
}

// People returns up to limit people, most salient first.
func (b *Builder) People(limit int) []Person {
	var people []graph.Node
	for _, n := range b.store.Nodes() {
		if n.Type == graph.TypePerson {
			people = append(people, n)
		}
	}
	sort.SliceStable(people, func(i, j int) bool {
		if people[i].Salience != people[j].Salience {
			return people[i].Salience > people[j].Salience
		}
		return people[i].Weight > people[j].Weight
	})
	if limit > 0 && len(people) > limit {
		people = people[:limit]
	}

	out := make([]Person, 0, len(people))
	for _, n := range people {
		p := Person{
			ID:           n.ID,
			Label:        n.Label,
			Channels:     channels(n.Contexts),
			Projects:     []string{},
			Salience:     n.Salience,
			Weight:       n.Weight,
			EngagementMs: b.engagement(n.ID).TotalMs,
			LastSeen:     n.LastSeen,
		}
		neighbors := b.store.Neighbors(n.ID, 0)
		for _, nb := range neighbors {
			if nb.Node.Type == graph.TypeProject {
				p.Projects = append(p.Projects, nb.Node.Label)
			}
		}
		p.Relationship = b.relationship(n, neighbors, len(p.Projects) > 0)
		out = append(out, p)
	}
	return out
}

// relationship reads edge relations first, strongest edge first, then
// falls back to project ties and the contexts the person appeared in.
func (b *Builder) relationship(n graph.Node, neighbors []graph.Neighbor, onProject bool) Relationship {
	for _, nb := range neighbors {
		rel := strings.ToLower(nb.Edge.Relation)
		if rel == "" || rel == graph.RelationCrossContext {
			continue
		}
		for _, k := range relationKeywords {
			for _, w := range k.words {
				if strings.Contains(rel, w) {
					return k.rel
				}
			}
		}
	}
	if onProject {
		return RelationshipColleague
	}

	var work, social int
	for _, ctx := range n.Contexts {
		cat, _ := b.classifier.ClassifyContext(ctx)
		switch cat {
		case graph.CategoryWork:
			work++
		case graph.CategorySocial, graph.CategoryPersonal:
			social++
		}
	}
	switch {
	case work > 0 && work >= social:
		return RelationshipColleague
	case social > 0:
		return RelationshipFriend
	}
	return RelationshipContact
}

func channels(contexts []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, ctx := range contexts {
		c := strings.ToLower(ctx)
		if c == "x.com" {
			c = "twitter"
		}
		for _, h := range channelHints {
			if strings.Contains(c, h.hint) && !seen[h.channel] {
				seen[h.channel] = true
				out = append(out, h.channel)
				break
			}
		}
	}
	return out
}
