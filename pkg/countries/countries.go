// Package countries is a client for the REST Countries v3.1 API.
//
// Only the fields the collector needs are decoded. Coordinate pairs are
// decoded leniently: a missing, short, or non-numeric latlng list yields an
// invalid LatLng instead of a decode error.
package countries

import (
	"encoding/json"
	"errors"
)

// Query kinds understood by the API.
const (
	KindRegion    = "region"
	KindSubregion = "subregion"
)

var (
	// ErrHTTPStatus is wrapped when the API answers with a non-2xx status.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	// ErrUnknownKind is returned for query kinds other than region/subregion.
	ErrUnknownKind = errors.New("unknown query kind")
)

// Country is one element of a region or subregion response. Every field
// decodes leniently: a missing or wrongly typed field leaves its zero value
// and never fails the surrounding response.
type Country struct {
	Name        Name        `json:"name"`
	Capital     Capitals    `json:"capital"`
	CapitalInfo CapitalInfo `json:"capitalInfo"`
	LatLng      LatLng      `json:"latlng"`
}

// UnmarshalJSON decodes each known field on its own. A non-object element
// yields a zero Country.
func (c *Country) UnmarshalJSON(data []byte) error {
	*c = Country{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	lenient(fields["name"], &c.Name)
	lenient(fields["capital"], &c.Capital)
	lenient(fields["capitalInfo"], &c.CapitalInfo)
	lenient(fields["latlng"], &c.LatLng)
	return nil
}

// lenient decodes raw into v, resetting v to its zero value on failure.
func lenient[T any](raw json.RawMessage, v *T) {
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, v); err != nil {
		var zero T
		*v = zero
	}
}

// Name holds the country's common name.
type Name struct {
	Common string `json:"common"`
}

// UnmarshalJSON keeps Common empty when it is missing or not a string.
func (n *Name) UnmarshalJSON(data []byte) error {
	*n = Name{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	lenient(fields["common"], &n.Common)
	return nil
}

// Capitals lists capital names. A bare string counts as a single capital;
// non-string entries are skipped.
type Capitals []string

// UnmarshalJSON never fails.
func (c *Capitals) UnmarshalJSON(data []byte) error {
	*c = nil

	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one != "" {
			*c = Capitals{one}
		}
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for _, v := range raw {
		if name, ok := v.(string); ok {
			*c = append(*c, name)
		}
	}
	return nil
}

// CapitalInfo carries the capital's coordinates when known.
type CapitalInfo struct {
	LatLng LatLng `json:"latlng"`
}

// UnmarshalJSON leaves LatLng invalid when the value is not an object.
func (ci *CapitalInfo) UnmarshalJSON(data []byte) error {
	*ci = CapitalInfo{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	lenient(fields["latlng"], &ci.LatLng)
	return nil
}

// LatLng is a [lat, lon] pair. Valid reports whether the source list had at
// least two numeric entries.
type LatLng struct {
	Lat   float64
	Lon   float64
	valid bool
}

// NewLatLng returns a valid pair.
func NewLatLng(lat, lon float64) LatLng {
	return LatLng{Lat: lat, Lon: lon, valid: true}
}

// Valid reports whether the pair is usable.
func (l LatLng) Valid() bool { return l.valid }

// UnmarshalJSON never fails; malformed input leaves the pair invalid.
func (l *LatLng) UnmarshalJSON(data []byte) error {
	*l = LatLng{}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if len(raw) < 2 {
		return nil
	}
	lat, okLat := raw[0].(float64)
	lon, okLon := raw[1].(float64)
	if !okLat || !okLon {
		return nil
	}
	*l = NewLatLng(lat, lon)
	return nil
}

// MarshalJSON writes a valid pair as [lat, lon] and an invalid one as null.
func (l LatLng) MarshalJSON() ([]byte, error) {
	if !l.valid {
		return []byte("null"), nil
	}
	return json.Marshal([]float64{l.Lat, l.Lon})
}

// FirstCapital returns the first listed capital, or "" when none is listed.
func (c Country) FirstCapital() string {
	if len(c.Capital) == 0 {
		return ""
	}
	return c.Capital[0]
}
