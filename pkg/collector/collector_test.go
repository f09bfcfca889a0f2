package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/capitalroutes/pkg/config"
	"github.com/orneryd/capitalroutes/pkg/countries"
	"github.com/orneryd/capitalroutes/pkg/metrics"
)

func ptr(v float64) *float64 { return &v }

type stubFetcher struct {
	responses map[string][]countries.Country
	err       map[string]error
	calls     []string
}

func (s *stubFetcher) Fetch(_ context.Context, kind, name string) ([]countries.Country, error) {
	s.calls = append(s.calls, kind+"/"+name)
	if err := s.err[name]; err != nil {
		return nil, err
	}
	return s.responses[name], nil
}

func country(name string, capitals []string, capLL, ll countries.LatLng) countries.Country {
	return countries.Country{
		Name:        countries.Name{Common: name},
		Capital:     capitals,
		CapitalInfo: countries.CapitalInfo{LatLng: capLL},
		LatLng:      ll,
	}
}

func TestExtract(t *testing.T) {
	t.Run("no capital uses country name", func(t *testing.T) {
		rec := Extract(country("Nocapia", nil, countries.LatLng{}, countries.NewLatLng(5, 6)), "Europe")
		assert.Equal(t, "Nocapia", rec.City)
		assert.Equal(t, "Nocapia", rec.Country)
		assert.Equal(t, 5.0, *rec.Lat)
		assert.Equal(t, 6.0, *rec.Lon)
		assert.Equal(t, "Europe", rec.Region)
	})

	t.Run("empty capital list uses country name", func(t *testing.T) {
		rec := Extract(country("Emptia", []string{}, countries.LatLng{}, countries.LatLng{}), "SE_Asia")
		assert.Equal(t, "Emptia", rec.City)
	})

	t.Run("capital coordinates preferred", func(t *testing.T) {
		rec := Extract(country("Testland", []string{"Testville", "Other"},
			countries.NewLatLng(10, 20), countries.NewLatLng(11, 21)), "Europe")
		assert.Equal(t, "Testville", rec.City)
		assert.Equal(t, 10.0, *rec.Lat)
		assert.Equal(t, 20.0, *rec.Lon)
	})

	t.Run("country coordinates as fallback", func(t *testing.T) {
		rec := Extract(country("Fallback", []string{"Fb"}, countries.LatLng{}, countries.NewLatLng(-3.5, 7.25)), "Europe")
		assert.Equal(t, -3.5, *rec.Lat)
		assert.Equal(t, 7.25, *rec.Lon)
	})

	t.Run("no coordinates at all", func(t *testing.T) {
		rec := Extract(country("Nowhere", []string{"Void"}, countries.LatLng{}, countries.LatLng{}), "South_Asia")
		assert.Nil(t, rec.Lat)
		assert.Nil(t, rec.Lon)
		assert.False(t, rec.HasCoordinates())
	})

	t.Run("missing common name", func(t *testing.T) {
		rec := Extract(countries.Country{}, "Europe")
		assert.Equal(t, "", rec.Country)
		assert.Equal(t, "", rec.City)
	})
}

func TestDedup(t *testing.T) {
	in := []Record{
		{Country: "A", City: "X", Lat: ptr(1), Region: "Europe"},
		{Country: "B", City: "Y", Region: "Europe"},
		{Country: "A", City: "X", Lat: ptr(2), Region: "SE_Asia"},
		{Country: "A", City: "Z", Region: "SE_Asia"},
	}
	out, dropped := Dedup(in)
	require.Len(t, out, 3)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1.0, *out[0].Lat, "first occurrence wins")
	assert.Equal(t, "Europe", out[0].Region)
}

func TestSortRecords(t *testing.T) {
	records := []Record{
		{Country: "Nepal", City: "Kathmandu", Region: "South_Asia"},
		{Country: "Spain", City: "Madrid", Region: "Europe"},
		{Country: "Austria", City: "Vienna", Region: "Europe"},
		{Country: "Laos", City: "Vientiane", Region: "SE_Asia"},
		{Country: "Austria", City: "Second", Region: "Europe"},
	}
	SortRecords(records)

	var got []string
	for _, r := range records {
		got = append(got, r.Region+"/"+r.Country+"/"+r.City)
	}
	assert.Equal(t, []string{
		"Europe/Austria/Vienna",
		"Europe/Austria/Second",
		"Europe/Spain/Madrid",
		"SE_Asia/Laos/Vientiane",
		"South_Asia/Nepal/Kathmandu",
	}, got)
}

func TestCollect(t *testing.T) {
	f := &stubFetcher{responses: map[string][]countries.Country{
		"europe": {
			country("Spain", []string{"Madrid"}, countries.NewLatLng(40.4, -3.68), countries.LatLng{}),
			country("Austria", []string{"Vienna"}, countries.NewLatLng(48.2, 16.37), countries.LatLng{}),
		},
		"South-Eastern Asia": {
			country("Laos", []string{"Vientiane"}, countries.NewLatLng(17.97, 102.6), countries.LatLng{}),
			country("Spain", []string{"Madrid"}, countries.NewLatLng(0, 0), countries.LatLng{}),
		},
		"Southern Asia": nil,
	}}
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	records, err := New(f, nil, m).Collect(context.Background(), config.DefaultQueries())
	require.NoError(t, err)

	assert.Equal(t, []string{"region/europe", "subregion/South-Eastern Asia", "subregion/Southern Asia"}, f.calls)
	require.Len(t, records, 3)
	assert.Equal(t, "Austria", records[0].Country)
	assert.Equal(t, "Spain", records[1].Country)
	assert.Equal(t, "Europe", records[1].Region, "duplicate from later query dropped")
	assert.Equal(t, 40.4, *records[1].Lat)
	assert.Equal(t, "Laos", records[2].Country)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateRows))
}

func TestCollect_FetchErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	f := &stubFetcher{err: map[string]error{"South-Eastern Asia": boom}}

	path := filepath.Join(t.TempDir(), "out", "capitals.csv")
	_, err := New(f, nil, nil).Run(context.Background(), config.DefaultQueries(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file written on failure")
}

func TestWriteCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	path := filepath.Join(dir, "capitals.csv")

	records := []Record{
		{Country: "Testland", City: "Testville", Lat: ptr(10), Lon: ptr(20.5), Region: "Europe"},
		{Country: "Côte, Land", City: "Nowhere", Region: "SE_Asia"},
	}
	require.NoError(t, WriteCSV(path, records))
	// Directory already exists on the second run.
	require.NoError(t, WriteCSV(path, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Equal(t, []string{
		"country,city,lat,lon,region",
		"Testland,Testville,10,20.5,Europe",
		`"Côte, Land",Nowhere,,,SE_Asia`,
	}, lines)
}

func TestWriteCSV_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capitals.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale,contents\nmore,stale\nand,more\n"), 0644))

	require.NoError(t, WriteCSV(path, []Record{{Country: "Solo", City: "One", Region: "Asia"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "country,city,lat,lon,region\nSolo,One,,,Asia\n", string(data))
}

func TestWriteCSV_PathIsDirectory(t *testing.T) {
	dir := t.TempDir()
	err := WriteCSV(dir, []Record{{Country: "Solo", City: "One"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating")
}

const testlandBody = `[
 {"name":{"common":"Testland"},"capital":["Testville"],"capitalInfo":{"latlng":[10.0,20.0]}},
 {"name":{"common":"Near"},"capital":["Nearby"],"capitalInfo":{"latlng":[10.5,20.5]}}
]`

func TestRun_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/region/europe" {
			_, _ = w.Write([]byte(testlandBody))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "data", "capitals.csv")
	n, err := New(countries.NewClient(srv.URL), nil, nil).Run(context.Background(), config.DefaultQueries(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"country,city,lat,lon,region\nNear,Nearby,10.5,20.5,Europe\nTestland,Testville,10,20,Europe\n",
		string(data))
}
