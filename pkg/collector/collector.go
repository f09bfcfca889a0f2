// Package collector turns REST Countries responses into the flat capitals
// table consumed by the route loader.
//
// A run fetches every configured query, extracts one record per country,
// drops repeated (country, city) pairs keeping the first, sorts by region
// then country, and writes the table as CSV. Any fetch failure aborts the run
// before the output file is touched.
package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/capitalroutes/pkg/config"
	"github.com/orneryd/capitalroutes/pkg/countries"
	"github.com/orneryd/capitalroutes/pkg/metrics"
)

// Record is one row of the capitals table. Lat and Lon are nil when no
// well-formed coordinates were available.
type Record struct {
	Country string
	City    string
	Lat     *float64
	Lon     *float64
	Region  string
}

// HasCoordinates reports whether both coordinates are present.
func (r Record) HasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}

// Fetcher returns the countries for one query.
type Fetcher interface {
	Fetch(ctx context.Context, kind, name string) ([]countries.Country, error)
}

// Collector runs the fetch-and-normalize stage.
type Collector struct {
	fetcher Fetcher
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a Collector. logger and m may be nil.
func New(fetcher Fetcher, logger *zap.Logger, m *metrics.Collector) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{fetcher: fetcher, logger: logger, metrics: m}
}

// Collect fetches every query in order and returns the deduplicated,
// sorted table.
func (c *Collector) Collect(ctx context.Context, queries []config.Query) ([]Record, error) {
	start := time.Now()
	defer c.metrics.ObserveStage("collect", start)

	var all []Record
	for _, q := range queries {
		items, err := c.fetcher.Fetch(ctx, q.Kind, q.Name)
		if err != nil {
			return nil, fmt.Errorf("fetching %s %q: %w", q.Kind, q.Name, err)
		}
		for _, item := range items {
			all = append(all, Extract(item, q.Label))
		}
		c.metrics.Fetched(q.Label, len(items))
		c.logger.Debug("fetched countries",
			zap.String("kind", q.Kind),
			zap.String("name", q.Name),
			zap.Int("count", len(items)))
	}

	records, dropped := Dedup(all)
	if dropped > 0 {
		c.metrics.Duplicates(dropped)
		c.logger.Info("dropped duplicate records", zap.Int("duplicates", dropped))
	}
	SortRecords(records)
	return records, nil
}

// Run collects and writes the table to path, returning the row count.
func (c *Collector) Run(ctx context.Context, queries []config.Query, path string) (int, error) {
	records, err := c.Collect(ctx, queries)
	if err != nil {
		return 0, err
	}
	if err := WriteCSV(path, records); err != nil {
		return 0, err
	}
	c.metrics.Written(len(records))
	c.logger.Info(fmt.Sprintf("Wrote %d rows to %s", len(records), path),
		zap.Int("rows", len(records)),
		zap.String("path", path))
	return len(records), nil
}

// Extract builds the record for one country. The city falls back to the
// country name when no capital is listed. Capital coordinates win over
// country coordinates; with neither, both stay nil.
func Extract(item countries.Country, label string) Record {
	rec := Record{
		Country: item.Name.Common,
		City:    item.FirstCapital(),
		Region:  label,
	}
	if rec.City == "" {
		rec.City = rec.Country
	}

	ll := item.CapitalInfo.LatLng
	if !ll.Valid() {
		ll = item.LatLng
	}
	if ll.Valid() {
		lat, lon := ll.Lat, ll.Lon
		rec.Lat, rec.Lon = &lat, &lon
	}
	return rec
}

type pairKey struct {
	country string
	city    string
}

// Dedup keeps the first record for every (country, city) pair and returns
// the number of records dropped. Input order is preserved.
func Dedup(records []Record) ([]Record, int) {
	seen := make(map[pairKey]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		k := pairKey{r.Country, r.City}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

// SortRecords orders by region, then country. Ties keep their input order.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Region != records[j].Region {
			return records[i].Region < records[j].Region
		}
		return records[i].Country < records[j].Country
	})
}
