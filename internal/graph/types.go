package graph

import (
	"strings"
	"time"
)

// EntityType is the closed set of node kinds.
type EntityType string

const (
	TypePerson  EntityType = "person"
	TypeTopic   EntityType = "topic"
	TypeApp     EntityType = "app"
	TypeContent EntityType = "content"
	TypePlace   EntityType = "place"
	TypeProject EntityType = "project"
	TypeGoal    EntityType = "goal"
	TypeSkill   EntityType = "skill"
)

var validTypes = map[EntityType]bool{
	TypePerson: true, TypeTopic: true, TypeApp: true, TypeContent: true,
	TypePlace: true, TypeProject: true, TypeGoal: true, TypeSkill: true,
}

// ParseType returns the EntityType for s, or false if s is not one.
func ParseType(s string) (EntityType, bool) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	return t, validTypes[t]
}

// Category is the activity context a node or edge belongs to.
type Category string

const (
	CategoryWork          Category = "work"
	CategoryLearning      Category = "learning"
	CategorySocial        Category = "social"
	CategoryEntertainment Category = "entertainment"
	CategoryPersonal      Category = "personal"
	CategoryUnknown       Category = "unknown"
)

// Role is the user's inferred relationship to a node.
type Role string

const (
	RoleCreator      Role = "creator"
	RoleCollaborator Role = "collaborator"
	RoleLearner      Role = "learner"
	RoleConsumer     Role = "consumer"
	RoleViewer       Role = "viewer"
)

// Trend describes how engagement with a node is moving.
type Trend string

const (
	TrendNew        Trend = "new"
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// Node is a canonical entity.
type Node struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Type      EntityType `json:"type"`
	Weight    int        `json:"weight"`
	FirstSeen time.Time  `json:"firstSeen"`
	LastSeen  time.Time  `json:"lastSeen"`
	Contexts  []string   `json:"contexts,omitempty"`
	Verified  bool       `json:"verified"`

	// Enrichment-derived.
	Salience        float64  `json:"salience"`
	Role            Role     `json:"role,omitempty"`
	EngagementTrend Trend    `json:"engagementTrend,omitempty"`
	PrimaryContext  Category `json:"primaryContext,omitempty"`
	Proficiency     float64  `json:"proficiency,omitempty"`
	EngagementMs    int64    `json:"engagementMs,omitempty"`
	SessionCount    int      `json:"sessionCount,omitempty"`
}

// Key returns the normalized label part of the node id.
func (n *Node) Key() string {
	_, key, _ := strings.Cut(n.ID, ":")
	return key
}

func (n *Node) clone() Node {
	c := *n
	c.Contexts = append([]string(nil), n.Contexts...)
	return c
}

// Edge is an undirected, weighted relationship between two nodes.
type Edge struct {
	Key        string    `json:"key"`
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	Weight     int       `json:"weight"`
	Relation   string    `json:"relation,omitempty"`
	Context    Category  `json:"context,omitempty"`
	LastActive time.Time `json:"lastActive,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Other returns the endpoint that is not id.
func (e *Edge) Other(id string) string {
	if e.Source == id {
		return e.Target
	}
	return e.Source
}

// EdgeKey returns the order-independent key for a pair of node ids.
func EdgeKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// SplitEdgeKey reverses EdgeKey.
func SplitEdgeKey(key string) (string, string, bool) {
	return strings.Cut(key, "|")
}

// Relation labels written by the engine itself.
const (
	RelationCrossContext = "nia_context"
)
