package extract

import (
	"strings"

	"github.com/tsawler/prose/v3"

	"github.com/lazypower/constellation/internal/graph"
)

// Recognizer finds named entities in free text.
type Recognizer interface {
	Recognize(text string) []Candidate
}

// ProseNER is a Recognizer backed by the prose tagger.
type ProseNER struct{}

// Recognize returns the people, places and organizations prose finds in
// text. Labels outside those classes are ignored.
func (ProseNER) Recognize(text string) []Candidate {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil
	}

	var out []Candidate
	for _, ent := range doc.Entities() {
		t, ok := nerType(ent.Label)
		if !ok {
			continue
		}
		out = append(out, Candidate{Label: ent.Text, Type: t, Source: "ner"})
	}
	return out
}

func nerType(label string) (graph.EntityType, bool) {
	switch strings.ToUpper(label) {
	case "PERSON":
		return graph.TypePerson, true
	case "GPE", "LOC", "FAC":
		return graph.TypePlace, true
	case "ORG", "PRODUCT":
		return graph.TypeTopic, true
	case "WORK_OF_ART":
		return graph.TypeContent, true
	}
	return "", false
}
