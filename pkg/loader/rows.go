package loader

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/orneryd/capitalroutes/pkg/graphstore"
)

var requiredColumns = []string{"country", "city", "lat", "lon", "region"}

// ReadRows reads the capitals CSV. Columns are located by header name.
// Coordinates that are empty, "None", or not a finite number are nil; if
// either coordinate of a row fails to parse, both are nil.
func ReadRows(path string) ([]graphstore.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	rows, err := decodeRows(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

func decodeRows(r io.Reader) ([]graphstore.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header")
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	field := func(rec []string, name string) string {
		if i := col[name]; i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var rows []graphstore.Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row := graphstore.Row{
			Country: field(rec, "country"),
			City:    field(rec, "city"),
			Region:  field(rec, "region"),
		}
		lat, latErr := parseCoord(field(rec, "lat"))
		lon, lonErr := parseCoord(field(rec, "lon"))
		if latErr == nil && lonErr == nil {
			row.Lat, row.Lon = lat, lon
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseCoord returns nil for absent values and an error for unparsable ones.
func parseCoord(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("non-finite coordinate %q", s)
	}
	return &v, nil
}

// Batches splits rows into consecutive chunks of at most size rows.
func Batches(rows []graphstore.Row, size int) [][]graphstore.Row {
	if size < 1 {
		size = 1
	}
	var out [][]graphstore.Row
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
