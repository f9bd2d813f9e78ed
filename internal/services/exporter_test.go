package services

import (
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"

	"diglet/internal/database"
	"diglet/internal/geopackage"
	"diglet/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

func testAOIGeometry() models.AOIGeometry {
	return models.AOIGeometry{SRID: 4674, WKT: testAOI, Source: "aoi.geojson", SourceSRID: 4326, FeatureCount: 1}
}

func probeRows() *database.RowSet {
	return &database.RowSet{
		Columns: []string{"gid", "owner", "geom"},
		Types:   []string{"INT4", "VARCHAR", "GEOMETRY"},
	}
}

func exportRows(rows ...[]any) *database.RowSet {
	return &database.RowSet{
		Columns: []string{"gid", "owner", "geom", ewkbColumn, validColumn},
		Rows:    rows,
	}
}

func TestExport_WritesValidRowsBeyondSampleSize(t *testing.T) {
	var rows [][]any
	for i := 0; i < 7; i++ {
		rows = append(rows, []any{int64(i), "owner", "raw", mustEWKB(t, squareAt(t, float64(i), 0)), true})
	}
	rows = append(rows,
		[]any{int64(90), "flagged", "raw", mustEWKB(t, squareAt(t, 1, 1)), false},
		[]any{int64(91), "empty", "raw", mustEWKB(t, geom.NewPolygon(geom.XY).SetSRID(4674)), true},
		[]any{int64(92), "hex", "raw", hex.EncodeToString(mustEWKB(t, squareAt(t, 2, 2))), true},
	)

	q := (&fakeQuerier{}).
		on(`SELECT * FROM "public"."parcels" LIMIT 0`, probeRows(), nil).
		on(`FROM "public"."parcels" AS t`, exportRows(rows...), nil)

	path := filepath.Join(t.TempDir(), "out.gpkg")
	e := NewExporter(q, testConfig(), zap.NewNop())
	report, err := e.Export(context.Background(), path, testAOIGeometry(), "public",
		models.LayerSelection{"parcels": true, "roads": false})
	require.NoError(t, err)

	assert.True(t, report.Success())
	require.Len(t, report.Layers, 1)
	lr := report.Layers[0]
	assert.Equal(t, models.LayerWritten, lr.Outcome)
	assert.Equal(t, 10, lr.Fetched)
	assert.Equal(t, 8, lr.Features)
	assert.Equal(t, 2, lr.Dropped)

	c, err := geopackage.Open(context.Background(), path)
	require.NoError(t, err)
	defer c.Close()

	layers, err := c.Layers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AOI", "parcels"}, layers)

	geoms, err := c.Geometries(context.Background(), "parcels")
	require.NoError(t, err)
	assert.Len(t, geoms, 8)

	gc, err := c.GeometryColumnOf(context.Background(), "parcels")
	require.NoError(t, err)
	assert.Equal(t, "POLYGON", gc.GeometryTypeName)

	var owner string
	var gid int64
	require.NoError(t, c.DB().QueryRowContext(context.Background(),
		`SELECT gid, owner FROM parcels WHERE fid = 8`).Scan(&gid, &owner))
	assert.Equal(t, int64(92), gid)
	assert.Equal(t, "hex", owner)

	for _, call := range q.callsMatching(`AS t`) {
		assert.Contains(t, call.query, "ST_GeomFromText($1, $2)")
		assert.NotContains(t, call.query, "POLYGON")
		assert.Equal(t, []any{testAOI, 4674}, call.args)
	}
}

func TestExport_LayerOutcomes(t *testing.T) {
	zm, err := geom.NewPoint(geom.XYZM).SetCoords(geom.Coord{1, 2, 3, 4})
	require.NoError(t, err)

	q := (&fakeQuerier{}).
		on(`LIMIT 0`, probeRows(), nil).
		on(`FROM "public"."broken" AS t`, exportRows(
			[]any{int64(1), "a", "raw", mustEWKB(t, squareAt(t, 0, 0)), false},
			[]any{int64(2), "b", "raw", []byte{0x01, 0x02}, true},
		), nil).
		on(`FROM "public"."nothing" AS t`, exportRows(), nil).
		on(`FROM "public"."bad" AS t`, nil, errors.New("permission denied")).
		on(`FROM "public"."survey" AS t`, exportRows(
			[]any{int64(1), "s", "raw", mustEWKB(t, zm.SetSRID(4674)), true},
		), nil)

	path := filepath.Join(t.TempDir(), "out.gpkg")
	e := NewExporter(q, testConfig(), zap.NewNop())
	sel := models.LayerSelection{"broken": true, "nothing": true, "bad": true, "survey": true}
	report, err := e.Export(context.Background(), path, testAOIGeometry(), "public", sel)
	require.NoError(t, err)
	assert.True(t, report.Success())

	byLayer := map[string]models.LayerReport{}
	for _, l := range report.Layers {
		byLayer[l.Layer] = l
	}
	assert.Equal(t, models.LayerSkippedAll, byLayer["broken"].Outcome)
	assert.Equal(t, 2, byLayer["broken"].Dropped)
	assert.Equal(t, models.LayerSkippedEmpty, byLayer["nothing"].Outcome)
	assert.Equal(t, models.LayerFailed, byLayer["bad"].Outcome)
	assert.Contains(t, byLayer["bad"].Reason, "permission denied")
	assert.Equal(t, models.LayerWritten, byLayer["survey"].Outcome)
	assert.True(t, byLayer["survey"].ConvertedZM)

	c, err := geopackage.Open(context.Background(), path)
	require.NoError(t, err)
	defer c.Close()

	layers, err := c.Layers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AOI", "survey"}, layers)

	geoms, err := c.Geometries(context.Background(), "survey")
	require.NoError(t, err)
	require.Len(t, geoms, 1)
	assert.Equal(t, geom.XYZ, geoms[0].Layout())
	assert.Equal(t, []float64{1, 2, 3}, geoms[0].FlatCoords())

	gc, err := c.GeometryColumnOf(context.Background(), "survey")
	require.NoError(t, err)
	assert.Equal(t, int8(1), gc.Z)
	assert.Equal(t, int8(0), gc.M)
}

func TestExport_FailsWhenAOICannotBeWritten(t *testing.T) {
	aoi := testAOIGeometry()
	aoi.WKT = "NOT WKT"

	e := NewExporter(&fakeQuerier{}, testConfig(), zap.NewNop())
	report, err := e.Export(context.Background(), filepath.Join(t.TempDir(), "x.gpkg"), aoi, "public", nil)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ExportError))
	assert.False(t, report.Success())
}

func TestExport_AOILayerCarriesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aoi.gpkg")
	e := NewExporter(&fakeQuerier{}, testConfig(), zap.NewNop())
	report, err := e.Export(context.Background(), path, testAOIGeometry(), "public", models.LayerSelection{})
	require.NoError(t, err)
	assert.True(t, report.Success())
	assert.Empty(t, report.Layers)

	c, err := geopackage.Open(context.Background(), path)
	require.NoError(t, err)
	defer c.Close()

	var source string
	require.NoError(t, c.DB().QueryRowContext(context.Background(), `SELECT source FROM "AOI"`).Scan(&source))
	assert.Equal(t, "aoi.geojson", source)
}

func TestEWKBBytes(t *testing.T) {
	raw := []byte{0x01, 0x01, 0x00, 0x00, 0x00}
	for _, v := range []any{raw, hex.EncodeToString(raw), `\x` + hex.EncodeToString(raw), []byte(`\x` + hex.EncodeToString(raw))} {
		got, err := ewkbBytes(v)
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	}
	_, err := ewkbBytes(nil)
	assert.Error(t, err)
}

func TestExport_NullAttributesAndDriverBytes(t *testing.T) {
	// pgdriver reports no column types and returns numeric and uuid values as
	// raw bytes; the types come from pg_attribute instead
	probe := &database.RowSet{Columns: []string{"gid", "owner", "area", "code", "geom"}}
	types := &database.RowSet{
		Columns: []string{"attname", "format_type"},
		Rows: [][]any{
			{[]byte("gid"), "integer"},
			{[]byte("owner"), "character varying(40)"},
			{[]byte("area"), "numeric(10,2)"},
			{[]byte("code"), "uuid"},
			{[]byte("geom"), "geometry(Polygon,4674)"},
		},
	}
	fetched := &database.RowSet{
		Columns: []string{"gid", "owner", "area", "code", "geom", ewkbColumn, validColumn},
		Rows: [][]any{
			{int64(1), nil, []byte("12.50"), []byte("5b1c2a9e-0000-4000-8000-000000000001"), "raw", mustEWKB(t, squareAt(t, 0, 0)), true},
			{int64(2), "bia", nil, nil, "raw", mustEWKB(t, squareAt(t, 2, 2)), true},
		},
	}

	q := (&fakeQuerier{}).
		on(`pg_attribute`, types, nil).
		on(`LIMIT 0`, probe, nil).
		on(`FROM "public"."parcels" AS t`, fetched, nil)

	path := filepath.Join(t.TempDir(), "out.gpkg")
	e := NewExporter(q, testConfig(), zap.NewNop())
	report, err := e.Export(context.Background(), path, testAOIGeometry(), "public", models.LayerSelection{"parcels": true})
	require.NoError(t, err)
	require.Len(t, report.Layers, 1)
	assert.Equal(t, models.LayerWritten, report.Layers[0].Outcome)
	assert.Equal(t, 2, report.Layers[0].Features)

	typeCalls := q.callsMatching(`pg_attribute`)
	require.Len(t, typeCalls, 1)
	assert.Equal(t, []any{`"public"."parcels"`}, typeCalls[0].args)

	c, err := geopackage.Open(context.Background(), path)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	var declared string
	require.NoError(t, c.DB().QueryRowContext(ctx,
		`SELECT type FROM pragma_table_info('parcels') WHERE name = 'area'`).Scan(&declared))
	assert.Equal(t, geopackage.TypeReal, declared)

	var ownerType, areaType, codeType string
	var area float64
	var code string
	require.NoError(t, c.DB().QueryRowContext(ctx,
		`SELECT typeof(owner), typeof(area), area, typeof(code), code FROM parcels WHERE gid = 1`).
		Scan(&ownerType, &areaType, &area, &codeType, &code))
	assert.Equal(t, "null", ownerType)
	assert.Equal(t, "real", areaType)
	assert.Equal(t, 12.5, area)
	assert.Equal(t, "text", codeType)
	assert.Equal(t, "5b1c2a9e-0000-4000-8000-000000000001", code)

	var nullArea string
	require.NoError(t, c.DB().QueryRowContext(ctx,
		`SELECT typeof(area) FROM parcels WHERE gid = 2`).Scan(&nullArea))
	assert.Equal(t, "null", nullArea)
}

func TestExport_LayerNamesNeverCollide(t *testing.T) {
	row := func() *database.RowSet {
		return exportRows([]any{int64(1), "x", "raw", mustEWKB(t, squareAt(t, 0, 0)), true})
	}
	q := (&fakeQuerier{}).
		on(`LIMIT 0`, probeRows(), nil).
		on(`FROM "public"."aoi" AS t`, row(), nil).
		on(`FROM "public"."Parcels" AS t`, row(), nil).
		on(`FROM "public"."parcels" AS t`, row(), nil)

	path := filepath.Join(t.TempDir(), "out.gpkg")
	e := NewExporter(q, testConfig(), zap.NewNop())
	sel := models.LayerSelection{"aoi": true, "Parcels": true, "parcels": true}
	report, err := e.Export(context.Background(), path, testAOIGeometry(), "public", sel)
	require.NoError(t, err)

	names := map[string]string{}
	for _, l := range report.Layers {
		assert.Equal(t, models.LayerWritten, l.Outcome, l.Table)
		names[l.Table] = l.Layer
	}
	assert.Equal(t, map[string]string{"Parcels": "Parcels", "aoi": "aoi_1", "parcels": "parcels_1"}, names)

	c, err := geopackage.Open(context.Background(), path)
	require.NoError(t, err)
	defer c.Close()

	layers, err := c.Layers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AOI", "Parcels", "aoi_1", "parcels_1"}, layers)

	var source string
	require.NoError(t, c.DB().QueryRowContext(context.Background(),
		`SELECT source FROM "AOI" WHERE fid = 1`).Scan(&source))
	assert.Equal(t, "aoi.geojson", source)
}

func TestUniqueLayerName(t *testing.T) {
	used := map[string]bool{"aoi": true}
	assert.Equal(t, "AOI_1", uniqueLayerName(used, "AOI"))
	assert.Equal(t, "roads", uniqueLayerName(used, "roads"))
	assert.Equal(t, "Roads_1", uniqueLayerName(used, "Roads"))
	assert.Equal(t, "aoi_2", uniqueLayerName(used, "aoi"))
}
