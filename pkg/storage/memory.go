package storage

import (
	"sync"
	"time"
)

// MemoryEngine is an in-memory implementation of Engine.
// It's useful for:
// - Unit testing (no disk I/O)
// - Dry runs of the route import without a graph server
type MemoryEngine struct {
	mu     sync.RWMutex
	nodes  map[NodeID]*Node
	edges  map[EdgeID]*Edge
	schema *SchemaManager

	// Indexes for efficient lookups
	nodesByLabel  map[string]map[NodeID]struct{}
	edgesByType   map[string]map[EdgeID]struct{}
	outgoingEdges map[NodeID]map[EdgeID]struct{}
	incomingEdges map[NodeID]map[EdgeID]struct{}

	closed bool
}

// NewMemoryEngine creates a new in-memory storage engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		nodes:         make(map[NodeID]*Node),
		edges:         make(map[EdgeID]*Edge),
		schema:        NewSchemaManager(),
		nodesByLabel:  make(map[string]map[NodeID]struct{}),
		edgesByType:   make(map[string]map[EdgeID]struct{}),
		outgoingEdges: make(map[NodeID]map[EdgeID]struct{}),
		incomingEdges: make(map[NodeID]map[EdgeID]struct{}),
	}
}

// CreateNode creates a new node.
func (m *MemoryEngine) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.nodes[node.ID]; exists {
		return ErrAlreadyExists
	}
	if err := m.schema.checkNode(node, ""); err != nil {
		return err
	}

	stored := copyNode(node)
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.nodes[node.ID] = stored

	for _, label := range node.Labels {
		addToIndex(m.nodesByLabel, label, node.ID)
	}
	m.schema.registerNode(stored)

	return nil
}

// GetNode retrieves a node by ID.
func (m *MemoryEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	node, exists := m.nodes[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyNode(node), nil
}

// UpdateNode replaces an existing node.
func (m *MemoryEngine) UpdateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	existing, exists := m.nodes[node.ID]
	if !exists {
		return ErrNotFound
	}
	if err := m.schema.checkNode(node, node.ID); err != nil {
		return err
	}

	// Remove from old label indexes
	for _, label := range existing.Labels {
		if m.nodesByLabel[label] != nil {
			delete(m.nodesByLabel[label], node.ID)
		}
	}
	m.schema.unregisterNode(existing)

	stored := copyNode(node)
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	m.nodes[node.ID] = stored

	for _, label := range node.Labels {
		addToIndex(m.nodesByLabel, label, node.ID)
	}
	m.schema.registerNode(stored)

	return nil
}

// GetNodesByLabel returns all nodes with the given label.
func (m *MemoryEngine) GetNodesByLabel(label string) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	nodeIDs := m.nodesByLabel[label]
	nodes := make([]*Node, 0, len(nodeIDs))
	for id := range nodeIDs {
		if node := m.nodes[id]; node != nil {
			nodes = append(nodes, copyNode(node))
		}
	}
	return nodes, nil
}

// CreateEdge creates a new edge. Both endpoints must exist.
func (m *MemoryEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if _, exists := m.edges[edge.ID]; exists {
		return ErrAlreadyExists
	}

	// Verify start and end nodes exist
	if _, exists := m.nodes[edge.StartNode]; !exists {
		return ErrNotFound
	}
	if _, exists := m.nodes[edge.EndNode]; !exists {
		return ErrNotFound
	}

	stored := copyEdge(edge)
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.edges[edge.ID] = stored

	addToEdgeIndex(m.outgoingEdges, edge.StartNode, edge.ID)
	addToEdgeIndex(m.incomingEdges, edge.EndNode, edge.ID)
	if m.edgesByType[edge.Type] == nil {
		m.edgesByType[edge.Type] = make(map[EdgeID]struct{})
	}
	m.edgesByType[edge.Type][edge.ID] = struct{}{}

	return nil
}

// GetEdge retrieves an edge by ID.
func (m *MemoryEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edge, exists := m.edges[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyEdge(edge), nil
}

// UpdateEdge replaces the properties of an existing edge.
// Endpoints and type are fixed at creation.
func (m *MemoryEngine) UpdateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	existing, exists := m.edges[edge.ID]
	if !exists {
		return ErrNotFound
	}
	if existing.StartNode != edge.StartNode || existing.EndNode != edge.EndNode || existing.Type != edge.Type {
		return ErrInvalidData
	}

	stored := copyEdge(edge)
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	m.edges[edge.ID] = stored

	return nil
}

// GetOutgoingEdges returns all edges starting from the given node.
func (m *MemoryEngine) GetOutgoingEdges(nodeID NodeID) ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edgeIDs := m.outgoingEdges[nodeID]
	edges := make([]*Edge, 0, len(edgeIDs))
	for id := range edgeIDs {
		if edge := m.edges[id]; edge != nil {
			edges = append(edges, copyEdge(edge))
		}
	}
	return edges, nil
}

// GetEdgesByType returns all edges of the given type.
func (m *MemoryEngine) GetEdgesByType(edgeType string) ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	edgeIDs := m.edgesByType[edgeType]
	edges := make([]*Edge, 0, len(edgeIDs))
	for id := range edgeIDs {
		if edge := m.edges[id]; edge != nil {
			edges = append(edges, copyEdge(edge))
		}
	}
	return edges, nil
}

// GetEdgeBetween returns an edge between two nodes with the given type.
// Returns nil if no edge exists.
func (m *MemoryEngine) GetEdgeBetween(source, target NodeID, edgeType string) *Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil
	}

	for edgeID := range m.outgoingEdges[source] {
		edge := m.edges[edgeID]
		if edge != nil && edge.EndNode == target {
			if edgeType == "" || edge.Type == edgeType {
				return copyEdge(edge)
			}
		}
	}
	return nil
}

// AddUniqueConstraint adds a constraint and indexes existing nodes under it.
func (m *MemoryEngine) AddUniqueConstraint(name, label, property string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}

	if err := m.schema.AddUniqueConstraint(name, label, property); err != nil {
		return err
	}

	existing := make([]*Node, 0, len(m.nodesByLabel[label]))
	for id := range m.nodesByLabel[label] {
		existing = append(existing, m.nodes[id])
	}
	return m.schema.backfill(label, property, existing)
}

// GetSchema returns the engine's schema manager.
func (m *MemoryEngine) GetSchema() *SchemaManager {
	return m.schema
}

// NodeCount returns the number of stored nodes.
func (m *MemoryEngine) NodeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.nodes)), nil
}

// EdgeCount returns the number of stored edges.
func (m *MemoryEngine) EdgeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.edges)), nil
}

// Close marks the engine closed. Further calls return ErrStorageClosed.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func addToIndex(index map[string]map[NodeID]struct{}, key string, id NodeID) {
	if index[key] == nil {
		index[key] = make(map[NodeID]struct{})
	}
	index[key][id] = struct{}{}
}

func addToEdgeIndex(index map[NodeID]map[EdgeID]struct{}, key NodeID, id EdgeID) {
	if index[key] == nil {
		index[key] = make(map[EdgeID]struct{})
	}
	index[key][id] = struct{}{}
}

// Verify MemoryEngine implements Engine
var _ Engine = (*MemoryEngine)(nil)
