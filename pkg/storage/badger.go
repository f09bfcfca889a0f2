// BadgerEngine provides persistent disk-based storage using BadgerDB.
package storage

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixNode          = byte(0x01) // nodes:nodeID -> Node
	prefixEdge          = byte(0x02) // edges:edgeID -> Edge
	prefixLabelIndex    = byte(0x03) // label:labelName:nodeID -> []byte{}
	prefixOutgoingIndex = byte(0x04) // outgoing:nodeID:edgeID -> []byte{}
	prefixIncomingIndex = byte(0x05) // incoming:nodeID:edgeID -> []byte{}
	prefixEdgeTypeIndex = byte(0x06) // edgetype:type:edgeID -> []byte{}
)

// BadgerEngine provides persistent storage using BadgerDB.
//
// Key Structure:
//   - Nodes: 0x01 + nodeID -> gob(Node)
//   - Edges: 0x02 + edgeID -> gob(Edge)
//   - Label Index: 0x03 + label + 0x00 + nodeID -> empty
//   - Outgoing Index: 0x04 + nodeID + 0x00 + edgeID -> empty
//   - Incoming Index: 0x05 + nodeID + 0x00 + edgeID -> empty
//   - Edge Type Index: 0x06 + type + 0x00 + edgeID -> empty
//
// Unique constraints live in memory and are rebuilt from disk whenever
// AddUniqueConstraint runs, so callers re-declare them after each open.
type BadgerEngine struct {
	db       *badger.DB
	schema   *SchemaManager
	mu       sync.RWMutex // serializes writes so constraint checks and commits are atomic
	closed   bool
	inMemory bool

	// Cached counts for O(1) stats lookups (updated on create)
	nodeCount atomic.Int64
	edgeCount atomic.Int64
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// Logger for BadgerDB internal logging.
	// If nil, BadgerDB logging is silenced.
	Logger badger.Logger

	// LowMemory reduces memtable and cache sizes.
	LowMemory bool
}

// NewBadgerEngine creates a new persistent storage engine with default settings.
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("./data/graph")
//	if err != nil {
//		return fmt.Errorf("failed to open graph: %w", err)
//	}
//	defer engine.Close()
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		DataDir: dataDir,
	})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	if !opts.InMemory && opts.DataDir == "" {
		return nil, fmt.Errorf("%w: badger data directory is required", ErrInvalidData)
	}

	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// Use a quiet logger by default
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(8 << 20).      // 8MB memtable
			WithValueLogFileSize(32 << 20). // 32MB value log
			WithNumMemtables(1).
			WithNumLevelZeroTables(1).
			WithNumLevelZeroTablesStall(2).
			WithBlockCacheSize(8 << 20).
			WithIndexCacheSize(4 << 20)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	engine := &BadgerEngine{
		db:       db,
		schema:   NewSchemaManager(),
		inMemory: opts.InMemory,
	}

	if err := engine.initializeCounts(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize counts: %w", err)
	}

	return engine, nil
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB for testing.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		InMemory: true,
	})
}

// IsInMemory returns true if the engine is running in memory-only mode.
func (b *BadgerEngine) IsInMemory() bool {
	return b.inMemory
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, []byte(id)...)
}

// indexKey builds prefix + name + 0x00 + id.
func indexKey(prefix byte, name, id string) []byte {
	key := make([]byte, 0, 1+len(name)+1+len(id))
	key = append(key, prefix)
	key = append(key, name...)
	key = append(key, 0x00)
	key = append(key, id...)
	return key
}

// labelIndexKey normalizes labels to lowercase (Neo4j-compatible matching).
func labelIndexKey(label string, nodeID NodeID) []byte {
	return indexKey(prefixLabelIndex, strings.ToLower(label), string(nodeID))
}

func labelIndexPrefix(label string) []byte {
	return indexKey(prefixLabelIndex, strings.ToLower(label), "")
}

func outgoingIndexKey(nodeID NodeID, edgeID EdgeID) []byte {
	return indexKey(prefixOutgoingIndex, string(nodeID), string(edgeID))
}

func outgoingIndexPrefix(nodeID NodeID) []byte {
	return indexKey(prefixOutgoingIndex, string(nodeID), "")
}

func incomingIndexKey(nodeID NodeID, edgeID EdgeID) []byte {
	return indexKey(prefixIncomingIndex, string(nodeID), string(edgeID))
}

func edgeTypeIndexKey(edgeType string, edgeID EdgeID) []byte {
	return indexKey(prefixEdgeTypeIndex, strings.ToLower(edgeType), string(edgeID))
}

func edgeTypeIndexPrefix(edgeType string) []byte {
	return indexKey(prefixEdgeTypeIndex, strings.ToLower(edgeType), "")
}

// idFromIndexKey extracts the trailing id from prefix + name + 0x00 + id.
func idFromIndexKey(key []byte, prefixLen int) string {
	if prefixLen >= len(key) {
		return ""
	}
	return string(key[prefixLen:])
}

// ============================================================================
// Serialization helpers
// ============================================================================

// encodeNode serializes a Node using gob (preserves Go types like int64).
func encodeNode(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeNode(data []byte) (*Node, error) {
	var node Node
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&node); err != nil {
		return nil, err
	}
	if node.Properties == nil {
		node.Properties = map[string]any{}
	}
	return &node, nil
}

func encodeEdge(e *Edge) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEdge(data []byte) (*Edge, error) {
	var edge Edge
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&edge); err != nil {
		return nil, err
	}
	if edge.Properties == nil {
		edge.Properties = map[string]any{}
	}
	return &edge, nil
}

// ============================================================================
// Node Operations
// ============================================================================

// CreateNode creates a new node in persistent storage.
func (b *BadgerEngine) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}
	if err := b.schema.checkNode(node, ""); err != nil {
		return err
	}

	stored := copyNode(node)
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	err := b.db.Update(func(txn *badger.Txn) error {
		key := nodeKey(stored.ID)
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := encodeNode(stored)
		if err != nil {
			return fmt.Errorf("failed to encode node: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		for _, label := range stored.Labels {
			if err := txn.Set(labelIndexKey(label, stored.ID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.schema.registerNode(stored)
	b.nodeCount.Add(1)
	return nil
}

// GetNode retrieves a node by ID.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStorageClosed
	}

	var node *Node
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getNodeInTxn(txn, id)
		return err
	})
	return node, err
}

func getNodeInTxn(txn *badger.Txn, id NodeID) (*Node, error) {
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var node *Node
	err = item.Value(func(val []byte) error {
		var decodeErr error
		node, decodeErr = decodeNode(val)
		return decodeErr
	})
	return node, err
}

// UpdateNode replaces an existing node and reindexes its labels.
func (b *BadgerEngine) UpdateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}
	if err := b.schema.checkNode(node, node.ID); err != nil {
		return err
	}

	var existing *Node
	stored := copyNode(node)
	err := b.db.Update(func(txn *badger.Txn) error {
		var err error
		existing, err = getNodeInTxn(txn, node.ID)
		if err != nil {
			return err
		}

		stored.CreatedAt = existing.CreatedAt
		stored.UpdatedAt = time.Now()

		for _, label := range existing.Labels {
			if err := txn.Delete(labelIndexKey(label, node.ID)); err != nil {
				return err
			}
		}
		data, err := encodeNode(stored)
		if err != nil {
			return fmt.Errorf("failed to encode node: %w", err)
		}
		if err := txn.Set(nodeKey(node.ID), data); err != nil {
			return err
		}
		for _, label := range stored.Labels {
			if err := txn.Set(labelIndexKey(label, node.ID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.schema.unregisterNode(existing)
	b.schema.registerNode(stored)
	return nil
}

// GetNodesByLabel returns all nodes with the given label.
func (b *BadgerEngine) GetNodesByLabel(label string) ([]*Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStorageClosed
	}

	var nodes []*Node
	prefix := labelIndexPrefix(label)
	err := b.db.View(func(txn *badger.Txn) error {
		ids := scanIndex(txn, prefix)
		nodes = make([]*Node, 0, len(ids))
		for _, id := range ids {
			node, err := getNodeInTxn(txn, NodeID(id))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			nodes = append(nodes, node)
		}
		return nil
	})
	return nodes, err
}

// scanIndex returns the ids stored under an index prefix.
func scanIndex(txn *badger.Txn, prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		if id := idFromIndexKey(it.Item().KeyCopy(nil), len(prefix)); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ============================================================================
// Edge Operations
// ============================================================================

// CreateEdge creates a new edge. Both endpoints must exist.
func (b *BadgerEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}

	stored := copyEdge(edge)
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	err := b.db.Update(func(txn *badger.Txn) error {
		key := edgeKey(stored.ID)
		if _, err := txn.Get(key); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		// Verify start and end nodes exist
		for _, id := range []NodeID{stored.StartNode, stored.EndNode} {
			if _, err := txn.Get(nodeKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			} else if err != nil {
				return err
			}
		}

		data, err := encodeEdge(stored)
		if err != nil {
			return fmt.Errorf("failed to encode edge: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(outgoingIndexKey(stored.StartNode, stored.ID), []byte{}); err != nil {
			return err
		}
		if err := txn.Set(incomingIndexKey(stored.EndNode, stored.ID), []byte{}); err != nil {
			return err
		}
		return txn.Set(edgeTypeIndexKey(stored.Type, stored.ID), []byte{})
	})
	if err != nil {
		return err
	}

	b.edgeCount.Add(1)
	return nil
}

// GetEdge retrieves an edge by ID.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStorageClosed
	}

	var edge *Edge
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		edge, err = getEdgeInTxn(txn, id)
		return err
	})
	return edge, err
}

func getEdgeInTxn(txn *badger.Txn, id EdgeID) (*Edge, error) {
	item, err := txn.Get(edgeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var edge *Edge
	err = item.Value(func(val []byte) error {
		var decodeErr error
		edge, decodeErr = decodeEdge(val)
		return decodeErr
	})
	return edge, err
}

// UpdateEdge replaces the properties of an existing edge.
// Endpoints and type are fixed at creation.
func (b *BadgerEngine) UpdateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		existing, err := getEdgeInTxn(txn, edge.ID)
		if err != nil {
			return err
		}
		if existing.StartNode != edge.StartNode || existing.EndNode != edge.EndNode || existing.Type != edge.Type {
			return ErrInvalidData
		}

		stored := copyEdge(edge)
		stored.CreatedAt = existing.CreatedAt
		stored.UpdatedAt = time.Now()
		data, err := encodeEdge(stored)
		if err != nil {
			return fmt.Errorf("failed to encode edge: %w", err)
		}
		return txn.Set(edgeKey(edge.ID), data)
	})
}

// GetOutgoingEdges returns all edges starting from the given node.
func (b *BadgerEngine) GetOutgoingEdges(nodeID NodeID) ([]*Edge, error) {
	return b.edgesUnder(outgoingIndexPrefix(nodeID))
}

// GetEdgesByType returns all edges of the given type (case-insensitive).
func (b *BadgerEngine) GetEdgesByType(edgeType string) ([]*Edge, error) {
	return b.edgesUnder(edgeTypeIndexPrefix(edgeType))
}

func (b *BadgerEngine) edgesUnder(prefix []byte) ([]*Edge, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStorageClosed
	}

	var edges []*Edge
	err := b.db.View(func(txn *badger.Txn) error {
		ids := scanIndex(txn, prefix)
		edges = make([]*Edge, 0, len(ids))
		for _, id := range ids {
			edge, err := getEdgeInTxn(txn, EdgeID(id))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			edges = append(edges, edge)
		}
		return nil
	})
	return edges, err
}

// GetEdgeBetween returns an edge between two nodes with the given type.
// Returns nil if no edge exists or on read failure.
func (b *BadgerEngine) GetEdgeBetween(source, target NodeID, edgeType string) *Edge {
	edges, err := b.GetOutgoingEdges(source)
	if err != nil {
		return nil
	}
	for _, edge := range edges {
		if edge.EndNode == target && (edgeType == "" || edge.Type == edgeType) {
			return edge
		}
	}
	return nil
}

// ============================================================================
// Schema, stats, lifecycle
// ============================================================================

// AddUniqueConstraint adds a constraint and indexes the nodes already on disk.
func (b *BadgerEngine) AddUniqueConstraint(name, label, property string) error {
	if err := b.schema.AddUniqueConstraint(name, label, property); err != nil {
		return err
	}
	nodes, err := b.GetNodesByLabel(label)
	if err != nil {
		return err
	}
	return b.schema.backfill(label, property, nodes)
}

// GetSchema returns the schema manager.
func (b *BadgerEngine) GetSchema() *SchemaManager {
	return b.schema
}

// initializeCounts scans the node and edge keyspaces once at open.
func (b *BadgerEngine) initializeCounts() error {
	return b.db.View(func(txn *badger.Txn) error {
		for _, p := range []struct {
			prefix byte
			count  *atomic.Int64
		}{{prefixNode, &b.nodeCount}, {prefixEdge, &b.edgeCount}} {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte{p.prefix}
			it := txn.NewIterator(opts)
			var n int64
			for it.Rewind(); it.Valid(); it.Next() {
				n++
			}
			it.Close()
			p.count.Store(n)
		}
		return nil
	})
}

// NodeCount returns the cached number of nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrStorageClosed
	}
	return b.nodeCount.Load(), nil
}

// EdgeCount returns the cached number of edges.
func (b *BadgerEngine) EdgeCount() (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrStorageClosed
	}
	return b.edgeCount.Load(), nil
}

// Close closes the underlying BadgerDB. Safe to call more than once.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Verify BadgerEngine implements Engine
var _ Engine = (*BadgerEngine)(nil)
