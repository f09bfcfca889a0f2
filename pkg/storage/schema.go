package storage

import (
	"fmt"
	"sort"
	"sync"
)

// UniqueConstraint requires Property to be unique among nodes with Label.
type UniqueConstraint struct {
	Name     string
	Label    string
	Property string
}

// SchemaManager tracks unique constraints and the values registered under
// them. The value index doubles as the key lookup used by MERGE-style upserts.
//
// Thread-safe.
type SchemaManager struct {
	mu          sync.RWMutex
	constraints map[string]UniqueConstraint // name -> constraint
	values      map[string]map[any]NodeID   // label\x00property -> value -> owner
}

// NewSchemaManager creates an empty schema.
func NewSchemaManager() *SchemaManager {
	return &SchemaManager{
		constraints: make(map[string]UniqueConstraint),
		values:      make(map[string]map[any]NodeID),
	}
}

func schemaKey(label, property string) string {
	return label + "\x00" + property
}

// AddUniqueConstraint registers a constraint. Adding the same definition again
// is a no-op; reusing a name for a different definition is an error.
func (sm *SchemaManager) AddUniqueConstraint(name, label, property string) error {
	if name == "" || label == "" || property == "" {
		return fmt.Errorf("%w: constraint name, label and property are required", ErrInvalidData)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	want := UniqueConstraint{Name: name, Label: label, Property: property}
	if existing, ok := sm.constraints[name]; ok {
		if existing != want {
			return fmt.Errorf("constraint %q already exists for :%s(%s)", name, existing.Label, existing.Property)
		}
		return nil
	}

	sm.constraints[name] = want
	key := schemaKey(label, property)
	if sm.values[key] == nil {
		sm.values[key] = make(map[any]NodeID)
	}
	return nil
}

// GetConstraints returns all constraints ordered by name.
func (sm *SchemaManager) GetConstraints() []UniqueConstraint {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]UniqueConstraint, 0, len(sm.constraints))
	for _, c := range sm.constraints {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasUniqueConstraint reports whether label.property is constrained.
func (sm *SchemaManager) HasUniqueConstraint(label, property string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.values[schemaKey(label, property)]
	return ok
}

// CheckUniqueConstraint returns ErrConstraintViolation when value is already
// owned by a node other than excludeID. Unconstrained properties always pass.
func (sm *SchemaManager) CheckUniqueConstraint(label, property string, value any, excludeID NodeID) error {
	if value == nil {
		return nil
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()

	index, ok := sm.values[schemaKey(label, property)]
	if !ok {
		return nil
	}
	if owner, taken := index[value]; taken && owner != excludeID {
		return fmt.Errorf("%w: :%s(%s) = %v already exists on node %s",
			ErrConstraintViolation, label, property, value, owner)
	}
	return nil
}

// RegisterUniqueValue records nodeID as the owner of value.
// Ignored for unconstrained properties.
func (sm *SchemaManager) RegisterUniqueValue(label, property string, value any, nodeID NodeID) {
	if value == nil {
		return
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if index, ok := sm.values[schemaKey(label, property)]; ok {
		index[value] = nodeID
	}
}

// UnregisterUniqueValue releases value.
func (sm *SchemaManager) UnregisterUniqueValue(label, property string, value any) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if index, ok := sm.values[schemaKey(label, property)]; ok {
		delete(index, value)
	}
}

// LookupUnique returns the node owning value under label.property.
func (sm *SchemaManager) LookupUnique(label, property string, value any) (NodeID, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	index, ok := sm.values[schemaKey(label, property)]
	if !ok {
		return "", false
	}
	id, ok := index[value]
	return id, ok
}

// checkNode validates every constrained property of node.
func (sm *SchemaManager) checkNode(node *Node, excludeID NodeID) error {
	for _, label := range node.Labels {
		for prop, value := range node.Properties {
			if err := sm.CheckUniqueConstraint(label, prop, value, excludeID); err != nil {
				return err
			}
		}
	}
	return nil
}

// registerNode records every constrained property of node.
func (sm *SchemaManager) registerNode(node *Node) {
	for _, label := range node.Labels {
		for prop, value := range node.Properties {
			sm.RegisterUniqueValue(label, prop, value, node.ID)
		}
	}
}

// unregisterNode releases every constrained property of node.
func (sm *SchemaManager) unregisterNode(node *Node) {
	for _, label := range node.Labels {
		for prop, value := range node.Properties {
			if owner, ok := sm.LookupUnique(label, prop, value); ok && owner == node.ID {
				sm.UnregisterUniqueValue(label, prop, value)
			}
		}
	}
}

// backfill indexes existing nodes for a freshly added constraint.
// Duplicate values already in storage make the constraint invalid.
func (sm *SchemaManager) backfill(label, property string, nodes []*Node) error {
	for _, n := range nodes {
		value, ok := n.Properties[property]
		if !ok || value == nil {
			continue
		}
		if err := sm.CheckUniqueConstraint(label, property, value, n.ID); err != nil {
			return err
		}
		sm.RegisterUniqueValue(label, property, value, n.ID)
	}
	return nil
}
