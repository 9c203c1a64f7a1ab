package extract

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/lazypower/constellation/internal/graph"
)

var validate = validator.New()

// Size limits for free text sent to the model.
const (
	maxScreenChars  = 600
	maxSummaryChars = 300
	maxClipChars    = 200
	maxRelationLen  = 40
)

// proposedEntity is one entity in a model reply.
type proposedEntity struct {
	Label      string `json:"label" validate:"required,min=2,max=80"`
	Type       string `json:"type" validate:"required,oneof=person topic app content place project goal skill"`
	Confidence string `json:"confidence"`
}

// proposedRelation is one relation in a model reply.
type proposedRelation struct {
	From     string `json:"from" validate:"required,min=2,max=80"`
	To       string `json:"to" validate:"required,min=2,max=80,nefield=From"`
	Relation string `json:"relation" validate:"max=40"`
}

// Valid reports whether a candidate passes the length and type bounds.
func Valid(c Candidate) bool {
	return validate.Struct(c) == nil
}

// validateEntity cleans a proposed entity and rejects garbage.
func validateEntity(e proposedEntity) (proposedEntity, error) {
	e.Label = strings.Join(strings.Fields(e.Label), " ")
	e.Type = strings.ToLower(strings.TrimSpace(e.Type))
	e.Confidence = strings.ToLower(strings.TrimSpace(e.Confidence))
	if err := validate.Struct(e); err != nil {
		return e, fmt.Errorf("entity %q: %w", e.Label, err)
	}
	return e, nil
}

func validateRelation(r proposedRelation) (proposedRelation, error) {
	r.From = strings.Join(strings.Fields(r.From), " ")
	r.To = strings.Join(strings.Fields(r.To), " ")
	r.Relation = sanitizeRelation(r.Relation)
	if err := validate.Struct(r); err != nil {
		return r, fmt.Errorf("relation %q -> %q: %w", r.From, r.To, err)
	}
	return r, nil
}

// sanitizeRelation normalizes a relation label to [a-z0-9_].
// "Working On" becomes "working_on"; other characters are dropped.
func sanitizeRelation(rel string) string {
	var b strings.Builder
	prevSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(rel)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevSep = false
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if !prevSep && b.Len() > 0 {
				b.WriteByte('_')
				prevSep = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > maxRelationLen {
		out = strings.TrimRight(out[:maxRelationLen], "_")
	}
	return out
}

// truncateClean cuts s to at most maxLen bytes at a word boundary.
func truncateClean(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > maxLen/2 {
		cut = cut[:idx]
	}
	// Do not leave a split multi-byte rune behind.
	return strings.TrimSpace(strings.ToValidUTF8(cut, ""))
}

func entityType(s string) graph.EntityType {
	t, _ := graph.ParseType(s)
	return t
}
