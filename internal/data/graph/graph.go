// Package graph is the property-graph access layer. Backend is implemented
// by Neo4j for production and by an in-memory graph for tests and local runs.
package graph

import (
	"context"
	"fmt"
)

type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Node is a graph node. ElementID is the store's internal handle; the atlas
// id lives in Props["id"].
type Node struct {
	ElementID string
	Labels    []string
	Props     map[string]any
}

// Label returns the node's primary label. Atlas nodes carry exactly one.
func (n Node) Label() string {
	if len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[0]
}

func (n Node) ID() string {
	if s, ok := n.Props["id"].(string); ok {
		return s
	}
	if v, ok := n.Props["id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

type Relationship struct {
	ElementID string
	Type      string
	StartID   string
	EndID     string
	Props     map[string]any
}

// Triple is one matched (start)-[rel]->(end) edge with both endpoints.
type Triple struct {
	Start Node
	Rel   Relationship
	End   Node
}

// RelPattern selects edges. Empty fields match anything.
type RelPattern struct {
	StartLabel string
	StartID    string
	Type       string
	EndLabel   string
	EndID      string
}

// Hop is one step of a traversal. Label restricts the node reached by the hop.
type Hop struct {
	Type  string
	Dir   Direction
	Label string
}

// Path holds len(Rels)+1 nodes in traversal order.
type Path struct {
	Nodes []Node
	Rels  []Relationship
}

// Last returns the node reached by the final hop.
func (p Path) Last() Node {
	if len(p.Nodes) == 0 {
		return Node{}
	}
	return p.Nodes[len(p.Nodes)-1]
}

type Op int

const (
	OpEquals Op = iota
	OpStartsWith
	OpContains
	OpIn
)

// Predicate compares a node property. StartsWith and Contains are
// case-insensitive; In expects a []string value.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// NodeQuery selects nodes. Where predicates are ANDed, Any predicates are
// ORed, and the two groups are ANDed together.
type NodeQuery struct {
	Labels  []string
	Where   []Predicate
	Any     []Predicate
	OrderBy string
	Desc    bool
	Limit   int
}

type Backend interface {
	CreateNode(ctx context.Context, label string, props map[string]any) (Node, error)
	FindNodes(ctx context.Context, q NodeQuery) ([]Node, error)
	CountNodes(ctx context.Context, label string) (int64, error)
	// SetNodeProps merges props into the node and reports whether it exists.
	SetNodeProps(ctx context.Context, label, id string, props map[string]any) (bool, error)
	// DeleteNode removes the node and its edges.
	DeleteNode(ctx context.Context, label, id string) (bool, error)

	MatchRelationships(ctx context.Context, p RelPattern, limit int) ([]Triple, error)
	// CreateRelationship creates the edge unless one with the same type
	// already joins the two nodes; created is false in that case.
	CreateRelationship(ctx context.Context, startID, relType, endID string, props map[string]any) (rel Relationship, created bool, err error)
	SetRelationshipProps(ctx context.Context, p RelPattern, props map[string]any) (int, error)
	DeleteRelationships(ctx context.Context, p RelPattern, limit int) (int, error)

	Traverse(ctx context.Context, startLabel, startID string, hops []Hop) ([]Path, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ErrNodeMissing is returned by CreateRelationship when an endpoint does not exist.
var ErrNodeMissing = fmt.Errorf("graph: node missing")
