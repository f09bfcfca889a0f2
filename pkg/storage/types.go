// Package storage provides the embedded graph storage engines used when the
// route graph is kept locally instead of in a Neo4j server.
//
// Two engines implement Engine:
//   - MemoryEngine: maps and indexes in RAM, for tests and dry runs
//   - BadgerEngine: persistent storage on BadgerDB
//
// Both engines enforce unique property constraints through a SchemaManager,
// which also serves as the lookup index for merge-by-key upserts.
//
// Example:
//
//	engine := storage.NewMemoryEngine()
//	defer engine.Close()
//
//	_ = engine.AddUniqueConstraint("city_unique", "City", "name")
//	_ = engine.CreateNode(&storage.Node{
//		ID:         storage.NewNodeID(),
//		Labels:     []string{"City"},
//		Properties: map[string]any{"name": "Vilnius"},
//	})
package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// NodeID uniquely identifies a node within an engine.
type NodeID string

// EdgeID uniquely identifies an edge within an engine.
type EdgeID string

// Common storage errors.
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidData         = errors.New("invalid data")
	ErrStorageClosed       = errors.New("storage closed")
	ErrConstraintViolation = errors.New("constraint violation")
)

// Node is a labeled property-graph vertex.
// A property that is absent from Properties is treated as null.
type Node struct {
	ID         NodeID
	Labels     []string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasLabel reports whether the node carries the given label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Edge is a directed, typed relationship between two nodes.
type Edge struct {
	ID         EdgeID
	StartNode  NodeID
	EndNode    NodeID
	Type       string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Engine is the storage contract shared by MemoryEngine and BadgerEngine.
//
// Engines return deep copies from read methods; callers may mutate results
// freely and persist changes through UpdateNode/UpdateEdge.
type Engine interface {
	// Node operations
	CreateNode(node *Node) error
	GetNode(id NodeID) (*Node, error)
	UpdateNode(node *Node) error
	GetNodesByLabel(label string) ([]*Node, error)

	// Edge operations
	CreateEdge(edge *Edge) error
	GetEdge(id EdgeID) (*Edge, error)
	UpdateEdge(edge *Edge) error
	GetOutgoingEdges(nodeID NodeID) ([]*Edge, error)
	GetEdgesByType(edgeType string) ([]*Edge, error)
	GetEdgeBetween(source, target NodeID, edgeType string) *Edge

	// Schema
	AddUniqueConstraint(name, label, property string) error
	GetSchema() *SchemaManager

	// Stats and lifecycle
	NodeCount() (int64, error)
	EdgeCount() (int64, error)
	Close() error
}

// NewNodeID returns a fresh random node ID.
func NewNodeID() NodeID {
	return NodeID(uuid.New().String())
}

// NewEdgeID returns a fresh random edge ID.
func NewEdgeID() EdgeID {
	return EdgeID(uuid.New().String())
}

// copyNode returns a deep copy of n so stored values cannot be mutated
// through returned pointers.
func copyNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		ID:         n.ID,
		Labels:     append([]string(nil), n.Labels...),
		Properties: make(map[string]any, len(n.Properties)),
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
	for k, v := range n.Properties {
		out.Properties[k] = v
	}
	return out
}

// copyEdge returns a deep copy of e.
func copyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}
	out := &Edge{
		ID:         e.ID,
		StartNode:  e.StartNode,
		EndNode:    e.EndNode,
		Type:       e.Type,
		Properties: make(map[string]any, len(e.Properties)),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
	for k, v := range e.Properties {
		out.Properties[k] = v
	}
	return out
}
