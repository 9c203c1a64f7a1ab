package graph

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minLabelLen = 2
	maxLabelLen = 80
	minFuzzyLen = 3
)

var (
	labelStripRe = regexp.MustCompile(`[^\p{L}\p{N}_\s@#-]`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "with": true, "at": true,
	"by": true, "is": true, "it": true, "this": true, "that": true, "be": true,
	"me": true, "my": true, "you": true, "your": true, "we": true, "us": true,
	"home": true, "new": true, "new tab": true, "untitled": true, "loading": true,
	"none": true, "null": true, "undefined": true, "unknown": true,
	"here": true, "there": true, "today": true, "yesterday": true,
}

// Normalize lowercases and trims label, removes punctuation other than
// "@", "#", "-" and "_", collapses whitespace and drops a leading sigil.
// "github.com" becomes "githubcom", "@Sam" becomes "sam".
func Normalize(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = labelStripRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimLeft(strings.TrimSpace(s), "@#")
	return strings.TrimSpace(s)
}

// Bare drops leading @ and # sigils so a handle matches plain text.
func Bare(label string) string {
	return strings.TrimLeft(strings.TrimSpace(label), "@#")
}

// Acceptable reports whether a normalized label may become a node.
func Acceptable(key string) bool {
	n := utf8.RuneCountInString(key)
	if n < minLabelLen || n > maxLabelLen {
		return false
	}
	return !stopWords[key]
}

// compatible reports whether nodes of type a and b may share a canonical id.
// Places and topics are interchangeable; every other type matches only itself.
func compatible(a, b EntityType) bool {
	if a == b {
		return true
	}
	loose := func(t EntityType) bool { return t == TypePlace || t == TypeTopic }
	return loose(a) && loose(b)
}

// fuzzyMatch reports whether the shorter of a and b is contained in the
// longer on word boundaries. For people a bare string prefix is enough,
// so "ben" matches "benjamin xu".
func fuzzyMatch(a, b string, t EntityType) bool {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if short == long || utf8.RuneCountInString(short) < minFuzzyLen {
		return false
	}
	if t == TypePerson && strings.HasPrefix(long, short) {
		return true
	}
	switch {
	case strings.HasPrefix(long, short+" "):
		return true
	case strings.HasSuffix(long, " "+short):
		return true
	case strings.Contains(long, " "+short+" "):
		return true
	}
	return false
}
