package graphstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/capitalroutes/pkg/geo"
	"github.com/orneryd/capitalroutes/pkg/storage"
)

// Projection is an in-process snapshot of the route network.
type Projection struct {
	Name          string
	Nodes         []string
	Relationships []ProjectedRoute
	CreatedAt     time.Time
}

// ProjectedRoute is one directed ROUTE edge weighted by distance.
type ProjectedRoute struct {
	From     string
	To       string
	Distance float64
}

// EmbeddedStore implements Store on a storage.Engine. Merges go through the
// engine's unique index on name, so repeated loads never duplicate nodes
// or edges.
type EmbeddedStore struct {
	engine storage.Engine
	logger *zap.Logger

	mu          sync.Mutex
	projections map[string]*Projection
}

// NewEmbeddedStore wraps engine. The store owns the engine and closes it.
func NewEmbeddedStore(engine storage.Engine, logger *zap.Logger) *EmbeddedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddedStore{
		engine:      engine,
		logger:      logger,
		projections: make(map[string]*Projection),
	}
}

// Engine exposes the underlying engine for inspection.
func (s *EmbeddedStore) Engine() storage.Engine {
	return s.engine
}

// EnsureConstraints adds the name constraints. Idempotent.
func (s *EmbeddedStore) EnsureConstraints(ctx context.Context) error {
	if err := s.engine.AddUniqueConstraint(ConstraintCity, LabelCity, PropName); err != nil {
		return fmt.Errorf("failed to create constraint %s: %w", ConstraintCity, err)
	}
	if err := s.engine.AddUniqueConstraint(ConstraintCountry, LabelCountry, PropName); err != nil {
		return fmt.Errorf("failed to create constraint %s: %w", ConstraintCountry, err)
	}
	for _, c := range s.engine.GetSchema().GetConstraints() {
		s.logger.Debug("constraint ensured",
			zap.String("name", c.Name),
			zap.String("label", c.Label),
			zap.String("property", c.Property))
	}
	return nil
}

// UpsertBatch merges each row in order.
func (s *EmbeddedStore) UpsertBatch(ctx context.Context, rows []Row) error {
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.upsertRow(r); err != nil {
			return fmt.Errorf("failed to upsert %s/%s: %w", r.Country, r.City, err)
		}
	}
	return nil
}

func (s *EmbeddedStore) upsertRow(r Row) error {
	countryID, err := s.mergeCountry(r.Country)
	if err != nil {
		return err
	}
	cityID, err := s.mergeCity(r)
	if err != nil {
		return err
	}
	if s.engine.GetEdgeBetween(countryID, cityID, RelHasCity) != nil {
		return nil
	}
	return s.engine.CreateEdge(&storage.Edge{
		ID:         storage.NewEdgeID(),
		StartNode:  countryID,
		EndNode:    cityID,
		Type:       RelHasCity,
		Properties: map[string]any{},
	})
}

// findByName resolves a node by label and name, using the unique index when
// the constraint exists and a label scan otherwise.
func (s *EmbeddedStore) findByName(label, name string) (*storage.Node, error) {
	schema := s.engine.GetSchema()
	if schema.HasUniqueConstraint(label, PropName) {
		id, ok := schema.LookupUnique(label, PropName, name)
		if !ok {
			return nil, storage.ErrNotFound
		}
		return s.engine.GetNode(id)
	}

	nodes, err := s.engine.GetNodesByLabel(label)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if v, ok := n.Properties[PropName].(string); ok && v == name {
			return n, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *EmbeddedStore) mergeCountry(name string) (storage.NodeID, error) {
	existing, err := s.findByName(LabelCountry, name)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	node := &storage.Node{
		ID:     storage.NewNodeID(),
		Labels: []string{LabelCountry},
		Properties: map[string]any{
			PropName:    name,
			PropCreated: time.Now().UnixMilli(),
		},
	}
	if err := s.engine.CreateNode(node); err != nil {
		return "", err
	}
	return node.ID, nil
}

func (s *EmbeddedStore) mergeCity(r Row) (storage.NodeID, error) {
	existing, err := s.findByName(LabelCity, r.City)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	if existing == nil {
		node := &storage.Node{
			ID:         storage.NewNodeID(),
			Labels:     []string{LabelCity},
			Properties: map[string]any{PropName: r.City, PropRegion: r.Region},
		}
		if r.Lat != nil {
			node.Properties[PropLatitude] = *r.Lat
		}
		if r.Lon != nil {
			node.Properties[PropLongitude] = *r.Lon
		}
		if err := s.engine.CreateNode(node); err != nil {
			return "", err
		}
		return node.ID, nil
	}

	if r.Lat != nil {
		existing.Properties[PropLatitude] = *r.Lat
	}
	if r.Lon != nil {
		existing.Properties[PropLongitude] = *r.Lon
	}
	existing.Properties[PropRegion] = r.Region
	if err := s.engine.UpdateNode(existing); err != nil {
		return "", err
	}
	return existing.ID, nil
}

type routeCity struct {
	id   storage.NodeID
	name string
	lat  float64
	lon  float64
}

// CreateRoutes visits every unordered pair of located cities once, in node
// ID order, and merges ROUTE edges both ways when the distance is at most
// thresholdKm.
func (s *EmbeddedStore) CreateRoutes(ctx context.Context, thresholdKm float64) (int, error) {
	nodes, err := s.engine.GetNodesByLabel(LabelCity)
	if err != nil {
		return 0, fmt.Errorf("failed to list cities: %w", err)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	cities := make([]routeCity, 0, len(nodes))
	for _, n := range nodes {
		lat, okLat := floatProp(n, PropLatitude)
		lon, okLon := floatProp(n, PropLongitude)
		if !okLat || !okLon {
			continue
		}
		name, _ := n.Properties[PropName].(string)
		cities = append(cities, routeCity{id: n.ID, name: name, lat: lat, lon: lon})
	}

	created := 0
	for i := 0; i < len(cities); i++ {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		a := cities[i]
		for j := i + 1; j < len(cities); j++ {
			b := cities[j]
			if a.name == b.name {
				continue
			}
			km := geo.HaversineKm(a.lat, a.lon, b.lat, b.lon)
			if km > thresholdKm {
				continue
			}
			distance := geo.RouteDistance(km)
			props := map[string]any{
				PropDistance:   distance,
				PropTravelTime: geo.TravelHours(distance),
			}
			if err := s.mergeRoute(a.id, b.id, props); err != nil {
				return created, err
			}
			if err := s.mergeRoute(b.id, a.id, props); err != nil {
				return created, err
			}
			created += 2
		}
	}
	return created, nil
}

func (s *EmbeddedStore) mergeRoute(from, to storage.NodeID, props map[string]any) error {
	if existing := s.engine.GetEdgeBetween(from, to, RelRoute); existing != nil {
		existing.Properties[PropDistance] = props[PropDistance]
		existing.Properties[PropTravelTime] = props[PropTravelTime]
		if err := s.engine.UpdateEdge(existing); err != nil {
			return fmt.Errorf("failed to update route: %w", err)
		}
		return nil
	}
	edge := &storage.Edge{
		ID:        storage.NewEdgeID(),
		StartNode: from,
		EndNode:   to,
		Type:      RelRoute,
		Properties: map[string]any{
			PropDistance:   props[PropDistance],
			PropTravelTime: props[PropTravelTime],
		},
	}
	if err := s.engine.CreateEdge(edge); err != nil {
		return fmt.Errorf("failed to create route: %w", err)
	}
	return nil
}

func floatProp(n *storage.Node, key string) (float64, bool) {
	switch v := n.Properties[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// DropProjection removes a projection from the registry.
func (s *EmbeddedStore) DropProjection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProjectionNotFound, name)
	}
	delete(s.projections, name)
	return nil
}

// ProjectRoutes snapshots City nodes and ROUTE edges under name.
func (s *EmbeddedStore) ProjectRoutes(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projections[name]; ok {
		return fmt.Errorf("%w: %s", ErrProjectionExists, name)
	}

	cities, err := s.engine.GetNodesByLabel(LabelCity)
	if err != nil {
		return fmt.Errorf("failed to project %s: %w", name, err)
	}
	names := make(map[storage.NodeID]string, len(cities))
	p := &Projection{Name: name, CreatedAt: time.Now()}
	for _, c := range cities {
		n, _ := c.Properties[PropName].(string)
		names[c.ID] = n
		p.Nodes = append(p.Nodes, n)
	}
	sort.Strings(p.Nodes)

	routes, err := s.engine.GetEdgesByType(RelRoute)
	if err != nil {
		return fmt.Errorf("failed to project %s: %w", name, err)
	}
	for _, e := range routes {
		d, _ := e.Properties[PropDistance].(float64)
		p.Relationships = append(p.Relationships, ProjectedRoute{
			From:     names[e.StartNode],
			To:       names[e.EndNode],
			Distance: d,
		})
	}
	sort.Slice(p.Relationships, func(i, j int) bool {
		ri, rj := p.Relationships[i], p.Relationships[j]
		if ri.From != rj.From {
			return ri.From < rj.From
		}
		return ri.To < rj.To
	})

	s.projections[name] = p
	s.logger.Info("projection created",
		zap.String("name", name),
		zap.Int("nodes", len(p.Nodes)),
		zap.Int("relationships", len(p.Relationships)))
	return nil
}

// Projection returns a registered projection.
func (s *EmbeddedStore) Projection(name string) (*Projection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projections[name]
	return p, ok
}

// Close closes the engine.
func (s *EmbeddedStore) Close(ctx context.Context) error {
	return s.engine.Close()
}

var _ Store = (*EmbeddedStore)(nil)
