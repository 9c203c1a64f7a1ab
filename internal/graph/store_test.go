package graph

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now)), clock
}

func mustAdd(t *testing.T, s *Store, label string, typ EntityType, occ Occurrence) string {
	t.Helper()
	id, ok := s.AddEntity(label, typ, occ)
	require.True(t, ok, "AddEntity(%q, %s) rejected", label, typ)
	return id
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  VS   Code ", "vs code"},
		{"github.com", "githubcom"},
		{"@sam", "sam"},
		{"#golang", "golang"},
		{"Project-X!", "project-x"},
		{"Café Crème", "café crème"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestAddEntityRejects(t *testing.T) {
	s, _ := testStore(t)
	for _, label := range []string{"", "a", "the", "Untitled", "!!", strings.Repeat("x", 81)} {
		_, ok := s.AddEntity(label, TypeTopic, Occurrence{})
		assert.False(t, ok, "label %q should be rejected", label)
	}
	_, ok := s.AddEntity("Golang", EntityType("language"), Occurrence{})
	assert.False(t, ok, "unknown type should be rejected")

	n, _ := s.Len()
	assert.Zero(t, n)
}

func TestIdempotentReinsertion(t *testing.T) {
	s, _ := testStore(t)
	a := mustAdd(t, s, "VS Code", TypeApp, Occurrence{})
	b := mustAdd(t, s, "VS Code", TypeApp, Occurrence{})

	assert.Equal(t, a, b)
	assert.Equal(t, "app:vs code", a)
	n, ok := s.Node(a)
	require.True(t, ok)
	assert.Equal(t, 2, n.Weight)
	count, _ := s.Len()
	assert.Equal(t, 1, count)
}

func TestCanonicalDedup(t *testing.T) {
	s, _ := testStore(t)
	ben := mustAdd(t, s, "Ben", TypePerson, Occurrence{})
	full := mustAdd(t, s, "Benjamin Xu", TypePerson, Occurrence{})

	assert.Equal(t, ben, full)
	n, _ := s.Node(ben)
	assert.Equal(t, "Ben", n.Label, "first-seen label wins")
	assert.Equal(t, 2, n.Weight)
}

func TestPersonPrefixFolds(t *testing.T) {
	s, _ := testStore(t)
	ben := mustAdd(t, s, "Ben", TypePerson, Occurrence{})
	assert.Equal(t, ben, mustAdd(t, s, "Bennett", TypePerson, Occurrence{}), "people fold on a bare prefix")

	topic := mustAdd(t, s, "Rust", TypeTopic, Occurrence{})
	assert.NotEqual(t, topic, mustAdd(t, s, "Rustacean", TypeTopic, Occurrence{}), "other types need a word boundary")
	assert.Equal(t, topic, mustAdd(t, s, "Rust Lang", TypeTopic, Occurrence{}))
}

func TestFuzzyMatchRequiresWordBoundaryOutsidePeople(t *testing.T) {
	s, _ := testStore(t)
	java := mustAdd(t, s, "Java", TypeTopic, Occurrence{})
	js := mustAdd(t, s, "JavaScript", TypeTopic, Occurrence{})
	assert.NotEqual(t, java, js)

	react := mustAdd(t, s, "React", TypeTopic, Occurrence{})
	native := mustAdd(t, s, "React Native", TypeTopic, Occurrence{})
	assert.Equal(t, react, native)
}

func TestFuzzyPrefersLongestLabel(t *testing.T) {
	s, _ := testStore(t)
	mustAdd(t, s, "Go", TypeTopic, Occurrence{})
	short := mustAdd(t, s, "Rust Book", TypeTopic, Occurrence{})
	long := mustAdd(t, s, "The Rust Book Online", TypeTopic, Occurrence{})
	assert.Equal(t, short, long)

	s2, _ := testStore(t)
	a := mustAdd(t, s2, "Machine Learning", TypeTopic, Occurrence{})
	b := mustAdd(t, s2, "Applied Machine Learning Course", TypeTopic, Occurrence{})
	require.Equal(t, a, b)
	// "learning" is contained in both candidates; the longer existing key wins.
	mustAdd(t, s2, "Deep Learning", TypeTopic, Occurrence{})
	got := mustAdd(t, s2, "Learning", TypeTopic, Occurrence{})
	assert.Equal(t, a, got)
}

func TestTypeCompatibility(t *testing.T) {
	s, _ := testStore(t)
	place := mustAdd(t, s, "Berlin", TypePlace, Occurrence{})
	topic := mustAdd(t, s, "Berlin", TypeTopic, Occurrence{})
	assert.Equal(t, place, topic, "place and topic share a group")

	person := mustAdd(t, s, "Berlin", TypePerson, Occurrence{})
	assert.NotEqual(t, place, person)
	assert.Equal(t, "person:berlin", person)
}

func TestContextsAreOrderedSetBounded(t *testing.T) {
	s, _ := testStore(t)
	var id string
	for i := 0; i < 15; i++ {
		id = mustAdd(t, s, "Figma", TypeApp, Occurrence{Context: string(rune('a' + i))})
	}
	mustAdd(t, s, "Figma", TypeApp, Occurrence{Context: "o"})

	n, _ := s.Node(id)
	assert.Len(t, n.Contexts, maxContexts)
	assert.Equal(t, "f", n.Contexts[0])
	assert.Equal(t, "o", n.Contexts[len(n.Contexts)-1])
}

func TestSymmetricEdges(t *testing.T) {
	s, _ := testStore(t)
	mustAdd(t, s, "Ben", TypePerson, Occurrence{})
	mustAdd(t, s, "Project X", TypeProject, Occurrence{})

	k1, ok := s.AddRelation("Ben", "Project X", "working_on")
	require.True(t, ok)
	k2, ok := s.AddRelation("Project X", "Ben", "collaborating_with")
	require.True(t, ok)

	assert.Equal(t, k1, k2)
	_, edges := s.Len()
	assert.Equal(t, 1, edges)
	e, _ := s.Edge(k1)
	assert.Equal(t, 2, e.Weight)
	assert.Equal(t, "working_on", e.Relation, "first relation wins")
}

func TestAddRelationNeverCreatesNodes(t *testing.T) {
	s, _ := testStore(t)
	mustAdd(t, s, "Ben", TypePerson, Occurrence{})

	_, ok := s.AddRelation("Ben", "Nobody Here", "knows")
	assert.False(t, ok)
	n, _ := s.Len()
	assert.Equal(t, 1, n)
}

func TestAddRelationPrefixResolution(t *testing.T) {
	s, _ := testStore(t)
	mustAdd(t, s, "Constellation Engine", TypeProject, Occurrence{})
	mustAdd(t, s, "Ana", TypePerson, Occurrence{})

	key, ok := s.AddRelation("ana", "constellation", "working_on")
	require.True(t, ok)
	assert.Equal(t, EdgeKey("person:ana", "project:constellation engine"), key)
}

func TestCoOccurrenceScenario(t *testing.T) {
	s, _ := testStore(t)
	gh := mustAdd(t, s, "github.com", TypeContent, Occurrence{Context: "Chrome", Hint: "h1"})
	sam := mustAdd(t, s, "@sam", TypePerson, Occurrence{Context: "Chrome", Hint: "h1"})
	assert.Equal(t, "content:githubcom", gh)
	assert.Equal(t, "person:sam", sam)
	n, _ := s.Node(sam)
	assert.Equal(t, "@sam", n.Label, "sigil stays in the label")

	key := EdgeKey(gh, sam)
	e, ok := s.Edge(key)
	require.True(t, ok)
	assert.Equal(t, 1, e.Weight)

	mustAdd(t, s, "github.com", TypeContent, Occurrence{Context: "Chrome", Hint: "h1"})
	mustAdd(t, s, "@sam", TypePerson, Occurrence{Context: "Chrome", Hint: "h1"})

	e, _ = s.Edge(key)
	assert.Equal(t, 2, e.Weight)
	nodes, edges := s.Len()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)
}

func TestCoOccurrenceNeedsIdenticalHint(t *testing.T) {
	s, _ := testStore(t)
	mustAdd(t, s, "Notion", TypeApp, Occurrence{Hint: "h1"})
	mustAdd(t, s, "Roadmap", TypeTopic, Occurrence{Hint: "h2"})

	_, edges := s.Len()
	assert.Zero(t, edges)
}

func TestHintWindowIsBounded(t *testing.T) {
	s, _ := testStore(t)
	mustAdd(t, s, "Early Bird", TypeTopic, Occurrence{Hint: "shared"})
	for i := 0; i < hintWindowSize; i++ {
		mustAdd(t, s, "Filler", TypeTopic, Occurrence{Hint: "other"})
	}
	mustAdd(t, s, "Late Comer", TypeTopic, Occurrence{Hint: "shared"})

	_, edges := s.Len()
	assert.Zero(t, edges, "hint recorded outside the window must not link")
}

func TestMergeCorrectness(t *testing.T) {
	s, clock := testStore(t)
	a := mustAdd(t, s, "Alpha Team", TypeTopic, Occurrence{Context: "Slack", Hint: "x"})
	clock.Advance(time.Hour)
	b := mustAdd(t, s, "Bravo Squad", TypeTopic, Occurrence{Context: "Zoom", Hint: "x"})
	mustAdd(t, s, "Bravo Squad", TypeTopic, Occurrence{})
	c := mustAdd(t, s, "Charlie", TypePerson, Occurrence{Hint: "y"})
	mustAdd(t, s, "Bravo Squad", TypeTopic, Occurrence{Hint: "y"})

	before, _ := s.Node(a)
	bNode, _ := s.Node(b)
	require.True(t, s.Merge(a, []string{b}))

	_, ok := s.Node(b)
	assert.False(t, ok)
	got, _ := s.Node(a)
	assert.Equal(t, before.Weight+bNode.Weight, got.Weight)
	assert.True(t, got.Verified)
	assert.Equal(t, "Bravo Squad", got.Label, "merge adopts the higher-weight label")
	assert.ElementsMatch(t, []string{"Slack", "Zoom"}, got.Contexts)
	assert.Equal(t, before.FirstSeen, got.FirstSeen)

	for _, e := range s.Edges() {
		assert.NotEqual(t, e.Source, e.Target, "no self loops")
		assert.NotEqual(t, b, e.Source)
		assert.NotEqual(t, b, e.Target)
	}
	_, ok = s.Edge(EdgeKey(a, c))
	assert.True(t, ok, "b's edge to c moves onto a")
	_, ok = s.Edge(EdgeKey(a, b))
	assert.False(t, ok)
}

func TestMergeStaleReferences(t *testing.T) {
	s, _ := testStore(t)
	a := mustAdd(t, s, "Alpha", TypeTopic, Occurrence{})

	assert.False(t, s.Merge("topic:gone", []string{a}))
	assert.False(t, s.Merge(a, []string{"topic:gone"}))
	assert.False(t, s.Merge(a, []string{a}))
	assert.False(t, s.RemoveNode("topic:gone"))
	assert.False(t, s.SetVerified("topic:gone"))
	_, ok := s.Link(a, "topic:gone", RelationCrossContext)
	assert.False(t, ok)
}

func TestDecayThreshold(t *testing.T) {
	s, clock := testStore(t)
	noise := mustAdd(t, s, "Noise Topic", TypeTopic, Occurrence{})
	kept := mustAdd(t, s, "Signal Topic", TypeTopic, Occurrence{})
	require.True(t, s.SetVerified(kept))

	clock.Advance(10 * 24 * time.Hour)
	fresh := mustAdd(t, s, "Fresh Topic", TypeTopic, Occurrence{})

	res := s.Decay(DefaultDecayPolicy())
	assert.Equal(t, []string{noise}, res.Nodes)
	_, ok := s.Node(kept)
	assert.True(t, ok, "verified node with weight 1 survives")
	_, ok = s.Node(fresh)
	assert.True(t, ok)
}

func TestDecayPrunesStaleWeakEdges(t *testing.T) {
	s, clock := testStore(t)
	a := mustAdd(t, s, "Alpha", TypeTopic, Occurrence{})
	b := mustAdd(t, s, "Bravo", TypeTopic, Occurrence{})
	c := mustAdd(t, s, "Charlie", TypeTopic, Occurrence{})
	s.Link(a, b, "")
	s.Link(a, c, "")
	s.Link(a, c, "")

	clock.Advance(31 * 24 * time.Hour)
	for _, label := range []string{"Alpha", "Bravo", "Charlie"} {
		mustAdd(t, s, label, TypeTopic, Occurrence{})
	}

	res := s.Decay(DefaultDecayPolicy())
	assert.Empty(t, res.Nodes)
	assert.Equal(t, 1, res.Edges)
	_, ok := s.Edge(EdgeKey(a, c))
	assert.True(t, ok, "heavier edge survives")
}

func TestRemoveNodePrunesEdges(t *testing.T) {
	s, _ := testStore(t)
	a := mustAdd(t, s, "Alpha", TypeTopic, Occurrence{Hint: "h"})
	b := mustAdd(t, s, "Bravo", TypeTopic, Occurrence{Hint: "h"})

	require.True(t, s.RemoveNode(b))
	_, edges := s.Len()
	assert.Zero(t, edges)
	assert.Empty(t, s.Neighbors(a, 0))
}

func TestNeighborsOrderedByWeight(t *testing.T) {
	s, _ := testStore(t)
	hub := mustAdd(t, s, "Hub", TypeTopic, Occurrence{})
	weak := mustAdd(t, s, "Weak", TypeTopic, Occurrence{})
	strong := mustAdd(t, s, "Strong", TypeTopic, Occurrence{})
	s.Link(hub, weak, "")
	s.Link(hub, strong, "")
	s.Link(hub, strong, "")

	got := s.Neighbors(hub, 1)
	require.Len(t, got, 1)
	assert.Equal(t, strong, got[0].Node.ID)
}

func TestUpdateNodesClampsSalience(t *testing.T) {
	s, _ := testStore(t)
	mustAdd(t, s, "Alpha", TypeTopic, Occurrence{})
	mustAdd(t, s, "Bravo", TypeTopic, Occurrence{})

	s.UpdateNodes(func(n *Node) {
		if n.Label == "Alpha" {
			n.Salience = 7
		} else {
			n.Salience = -3
		}
	})
	for _, n := range s.Nodes() {
		assert.GreaterOrEqual(t, n.Salience, 0.0)
		assert.LessOrEqual(t, n.Salience, 1.0)
	}
}

func TestSnapshotRestore(t *testing.T) {
	s, _ := testStore(t)
	a := mustAdd(t, s, "Alpha", TypeTopic, Occurrence{Hint: "h"})
	b := mustAdd(t, s, "Bravo", TypeTopic, Occurrence{Hint: "h"})
	s.AddRelation("Alpha", "Bravo", "related_to")

	snap := s.Snapshot()
	snap.Nodes = append(snap.Nodes, Node{ID: "bogus:x", Type: "bogus"})
	snap.Edges = append(snap.Edges, EdgeRow{Source: a, Target: "topic:missing", Weight: 3})

	r, _ := testStore(t)
	nodes, edges := r.Restore(snap)
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)

	e, ok := r.Edge(EdgeKey(b, a))
	require.True(t, ok)
	assert.Equal(t, 2, e.Weight)
	assert.Equal(t, "related_to", e.Relation)
}

func TestReset(t *testing.T) {
	s, _ := testStore(t)
	mustAdd(t, s, "Alpha", TypeTopic, Occurrence{Hint: "h"})
	mustAdd(t, s, "Bravo", TypeTopic, Occurrence{Hint: "h"})
	s.Reset()

	n, e := s.Len()
	assert.Zero(t, n)
	assert.Zero(t, e)

	mustAdd(t, s, "Charlie", TypeTopic, Occurrence{Hint: "h"})
	_, e = s.Len()
	assert.Zero(t, e, "hint history is cleared too")
}

func TestConcurrentMutation(t *testing.T) {
	s := New()
	labels := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				label := labels[(w+i)%len(labels)]
				id, _ := s.AddEntity(label, TypeTopic, Occurrence{Hint: "h"})
				if i%17 == 0 {
					s.RemoveNode(id)
				}
				if i%23 == 0 {
					s.Decay(DefaultDecayPolicy())
				}
			}
		}(w)
	}
	wg.Wait()

	for _, e := range s.Edges() {
		_, ok := s.Node(e.Source)
		assert.True(t, ok, "dangling source %s", e.Source)
		_, ok = s.Node(e.Target)
		assert.True(t, ok, "dangling target %s", e.Target)
	}
}
