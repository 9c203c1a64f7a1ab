package llm

import (
	"fmt"
	"strings"
)

// ExtractionSystem instructs the model to return entities and relations only.
const ExtractionSystem = `You extract a personal knowledge graph from someone's computer activity.
Return ONLY a JSON object, no prose.`

// ExtractionInput is the material batched into one extraction request.
type ExtractionInput struct {
	Summaries  []string
	ScreenText []string
	Titles     []string
	Clipboard  []string
}

// Empty reports whether there is nothing to send.
func (in ExtractionInput) Empty() bool {
	return len(in.Summaries) == 0 && len(in.ScreenText) == 0 && len(in.Titles) == 0 && len(in.Clipboard) == 0
}

// ExtractionPrompt builds the user prompt for entity and relation extraction.
func ExtractionPrompt(in ExtractionInput) string {
	var b strings.Builder
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", title)
		for _, it := range items {
			fmt.Fprintf(&b, "- %s\n", it)
		}
		b.WriteString("\n")
	}
	section("RECENT ACTIVITY SUMMARIES", in.Summaries)
	section("SCREEN TEXT", in.ScreenText)
	section("WINDOW TITLES", in.Titles)
	section("CLIPBOARD", in.Clipboard)

	b.WriteString(`Identify the people, projects, topics, content, places, goals and skills that matter to this person.

Rules:
- Use specific names, not generic words ("Kubernetes", not "software")
- Skip UI chrome, menu labels, file extensions and boilerplate
- type must be one of: person, topic, app, content, place, project, goal, skill
- confidence is "high" only when the entity is unambiguous
- relations connect two labels from the entities list, e.g. working_on, discussed_with, learning

Return:
{"entities":[{"label":"...","type":"...","confidence":"high|medium|low"}],
 "relations":[{"from":"...","to":"...","relation":"..."}]}

If nothing is worth extracting, return {"entities":[],"relations":[]}`)
	return b.String()
}

// CleanupSystem instructs the model to classify graph nodes as signal or noise.
const CleanupSystem = `You curate a personal knowledge graph. You separate real signal (people,
projects, topics the person genuinely engages with) from noise (UI labels, fragments, OCR junk,
generic words). Return ONLY a JSON object, no prose.`

// CleanupItem is one node offered for classification.
type CleanupItem struct {
	ID       string
	Label    string
	Type     string
	Weight   int
	Contexts []string
}

// CleanupPrompt builds the classification prompt for a batch of nodes.
func CleanupPrompt(items []CleanupItem) string {
	var b strings.Builder
	b.WriteString("NODES (id | label | type | weight | recent contexts):\n")
	for _, it := range items {
		ctx := it.Contexts
		if len(ctx) > 3 {
			ctx = ctx[len(ctx)-3:]
		}
		fmt.Fprintf(&b, "%s | %s | %s | %d | %s\n", it.ID, it.Label, it.Type, it.Weight, strings.Join(ctx, ", "))
	}
	b.WriteString(`
Classify every node by id:
- keep: meaningful signal
- remove: noise
- merge: several ids that name the same thing; choose the best-named id as target

Return:
{"keep":["id",...],"remove":["id",...],"merge":[{"target":"id","sources":["id",...]}]}`)
	return b.String()
}
