package services

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"testing"

	"diglet/internal/config"
	"diglet/internal/database"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

const testAOI = "POLYGON((0 0,10 0,10 10,0 10,0 0))"

type queryCall struct {
	query string
	args  []any
}

// fakeQuerier answers by the first route whose fragment occurs in the query.
type fakeQuerier struct {
	mu     sync.Mutex
	calls  []queryCall
	routes []fakeRoute
}

type fakeRoute struct {
	fragment string
	rows     *database.RowSet
	err      error
}

func (f *fakeQuerier) on(fragment string, rows *database.RowSet, err error) *fakeQuerier {
	f.routes = append(f.routes, fakeRoute{fragment: fragment, rows: rows, err: err})
	return f
}

func (f *fakeQuerier) Query(_ context.Context, query string, args ...any) (*database.RowSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, queryCall{query: query, args: args})
	for _, r := range f.routes {
		if strings.Contains(query, r.fragment) {
			if r.err != nil {
				return nil, r.err
			}
			return r.rows, nil
		}
	}
	return &database.RowSet{}, nil
}

func (f *fakeQuerier) callsMatching(fragment string) []queryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []queryCall
	for _, c := range f.calls {
		if strings.Contains(c.query, fragment) {
			out = append(out, c)
		}
	}
	return out
}

func countRows(n int64) *database.RowSet {
	return &database.RowSet{Columns: []string{"count"}, Rows: [][]any{{n}}}
}

func testConfig() *config.Config {
	return &config.Config{
		TargetSRID:     4674,
		GeometryColumn: "geom",
		SampleLimit:    5,
		SampleValues:   5,
		DisplayLength:  100,
	}
}

func mustEWKB(t *testing.T, g geom.T) []byte {
	t.Helper()
	b, err := ewkb.Marshal(g, binary.LittleEndian)
	require.NoError(t, err)
	return b
}

func squareAt(t *testing.T, x, y float64) *geom.Polygon {
	t.Helper()
	p, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y},
	}})
	require.NoError(t, err)
	return p.SetSRID(4674)
}

var fakeRowSetValue = database.RowSet{Columns: []string{"st_astext"}, Rows: [][]any{{"POLYGON((0 0,1 0,1 1,0 0))"}}}
