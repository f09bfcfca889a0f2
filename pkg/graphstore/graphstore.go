// Package graphstore writes the capitals graph.
//
// The graph has Country and City nodes keyed by name, a HAS_CITY edge from
// each country to its city, and ROUTE edges in both directions between
// cities whose great-circle distance is within a threshold. Two adapters
// implement Store: Neo4jStore talks to a Neo4j server over Bolt, and
// EmbeddedStore runs the same semantics on a storage.Engine (in memory or
// BadgerDB).
package graphstore

import (
	"context"
	"errors"
)

// Graph vocabulary.
const (
	LabelCountry = "Country"
	LabelCity    = "City"
	RelHasCity   = "HAS_CITY"
	RelRoute     = "ROUTE"

	ConstraintCity    = "city_unique"
	ConstraintCountry = "country_unique"

	PropName       = "name"
	PropCreated    = "created"
	PropLatitude   = "latitude"
	PropLongitude  = "longitude"
	PropRegion     = "region"
	PropDistance   = "distance"
	PropTravelTime = "travel_time_hours"
)

var (
	// ErrProjectionNotFound is returned when dropping a projection that does
	// not exist.
	ErrProjectionNotFound = errors.New("projection not found")
	// ErrProjectionExists is returned when projecting under a name in use.
	ErrProjectionExists = errors.New("projection already exists")
)

// Row is one upsert unit: a country, its city and the city's attributes.
// Nil coordinates never overwrite stored ones.
type Row struct {
	Country string
	City    string
	Lat     *float64
	Lon     *float64
	Region  string
}

// Params returns the row as a Cypher parameter map. Nil coordinates become
// null.
func (r Row) Params() map[string]any {
	m := map[string]any{
		"country": r.Country,
		"city":    r.City,
		"lat":     nil,
		"lon":     nil,
		"region":  r.Region,
	}
	if r.Lat != nil {
		m["lat"] = *r.Lat
	}
	if r.Lon != nil {
		m["lon"] = *r.Lon
	}
	return m
}

// Store is the write surface the loader needs.
type Store interface {
	// EnsureConstraints creates the name uniqueness constraints. Idempotent.
	EnsureConstraints(ctx context.Context) error
	// UpsertBatch merges the rows' countries, cities and HAS_CITY edges.
	UpsertBatch(ctx context.Context, rows []Row) error
	// CreateRoutes merges ROUTE edges for every qualifying city pair and
	// returns the number of edges asserted (two per pair).
	CreateRoutes(ctx context.Context, thresholdKm float64) (int, error)
	// DropProjection removes a named projection.
	DropProjection(ctx context.Context, name string) error
	// ProjectRoutes creates a named projection of City nodes and ROUTE
	// edges weighted by distance.
	ProjectRoutes(ctx context.Context, name string) error
	// Close releases the store.
	Close(ctx context.Context) error
}
