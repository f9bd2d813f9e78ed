package geopackage

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(t *testing.T, x, y float64) *geom.Polygon {
	t.Helper()
	p, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y},
	}})
	require.NoError(t, err)
	return p
}

func TestEncodeBlob_Header(t *testing.T) {
	blob, err := EncodeBlob(square(t, 10, 20), 4674)
	require.NoError(t, err)

	assert.Equal(t, []byte("GP"), blob[:2])
	assert.Equal(t, byte(0), blob[2], "version")
	assert.Equal(t, byte(0x03), blob[3], "little endian with XY envelope")
	assert.Equal(t, uint32(4674), binary.LittleEndian.Uint32(blob[4:8]))

	g, srid, err := DecodeBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, 4674, srid)
	assert.Equal(t, geom.XY, g.Layout())
	assert.Equal(t, square(t, 10, 20).FlatCoords(), g.FlatCoords())

	b := g.Bounds()
	assert.Equal(t, 10.0, b.Min(0))
	assert.Equal(t, 21.0, b.Max(1))
}

func TestEncodeBlob_EmptyHasNoEnvelope(t *testing.T) {
	blob, err := EncodeBlob(geom.NewMultiPolygon(geom.XY), 4326)
	require.NoError(t, err)

	assert.Equal(t, byte(0x11), blob[3], "little endian, empty, no envelope")
	g, _, err := DecodeBlob(blob)
	require.NoError(t, err)
	assert.Empty(t, g.FlatCoords())
}

func TestDecodeBlob_RejectsForeignBytes(t *testing.T) {
	_, _, err := DecodeBlob([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrNotGeoPackageBlob)
}

func TestContainer_WriteLayer(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "result.gpkg")

	c, err := Open(ctx, path)
	require.NoError(t, err)
	defer c.Close()

	var appID, version int
	require.NoError(t, c.DB().QueryRowContext(ctx, "PRAGMA application_id").Scan(&appID))
	require.NoError(t, c.DB().QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, applicationID, appID)
	assert.Equal(t, userVersion, version)

	line, err := geom.NewLineString(geom.XYZ).SetCoords([]geom.Coord{{0, 0, 1}, {1, 1, 2}})
	require.NoError(t, err)

	layer := Layer{
		Name:         "roads",
		SRID:         4674,
		GeometryType: "LINESTRING",
		Z:            1,
		Fields: []Field{
			{Name: "name", Type: TypeText},
			{Name: "fid", Type: TypeInteger},
			{Name: "opened", Type: TypeDateTime},
			{Name: "paved", Type: TypeBoolean},
		},
		Features: []Feature{
			{Geometry: line, Attributes: []any{"BR-101", int64(7), time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), true}},
			{Geometry: line, Attributes: []any{"O'Hare", nil, nil, false}},
		},
	}
	require.NoError(t, c.WriteLayer(ctx, layer))

	layers, err := c.Layers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"roads"}, layers)

	gc, err := c.GeometryColumnOf(ctx, "roads")
	require.NoError(t, err)
	assert.Equal(t, "LINESTRING", gc.GeometryTypeName)
	assert.Equal(t, 4674, gc.SRSID)
	assert.Equal(t, int8(1), gc.Z)
	assert.Equal(t, int8(0), gc.M)

	geoms, err := c.Geometries(ctx, "roads")
	require.NoError(t, err)
	require.Len(t, geoms, 2)
	assert.Equal(t, geom.XYZ, geoms[0].Layout())

	var name, opened string
	var renamedFid int64
	require.NoError(t, c.DB().QueryRowContext(ctx,
		`SELECT name, fid_1, opened FROM roads WHERE fid = 1`).Scan(&name, &renamedFid, &opened))
	assert.Equal(t, "BR-101", name)
	assert.Equal(t, int64(7), renamedFid)
	assert.Equal(t, "2020-01-02T03:04:05.000Z", opened)

	var fidType, openedType, paved string
	require.NoError(t, c.DB().QueryRowContext(ctx,
		`SELECT typeof(fid_1), typeof(opened), typeof(paved) FROM roads WHERE fid = 2`).Scan(&fidType, &openedType, &paved))
	assert.Equal(t, "null", fidType)
	assert.Equal(t, "null", openedType)
	assert.Equal(t, "integer", paved)

	var srsCount int
	require.NoError(t, c.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM gpkg_spatial_ref_sys WHERE srs_id IN (-1, 0, 4326, 4674)`).Scan(&srsCount))
	assert.Equal(t, 4, srsCount)
}

func TestContainer_WriteLayerReplaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "replace.gpkg")

	c, err := Open(ctx, path)
	require.NoError(t, err)

	first := Layer{Name: "AOI", SRID: 4674, GeometryType: "MULTIPOLYGON", Features: []Feature{
		{Geometry: square(t, 0, 0)}, {Geometry: square(t, 5, 5)},
	}}
	require.NoError(t, c.WriteLayer(ctx, first))
	require.NoError(t, c.Close())

	c, err = Open(ctx, path)
	require.NoError(t, err)
	defer c.Close()

	second := Layer{Name: "AOI", SRID: 4674, GeometryType: "POLYGON", Features: []Feature{
		{Geometry: square(t, 1, 1)},
	}}
	require.NoError(t, c.WriteLayer(ctx, second))

	layers, err := c.Layers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AOI"}, layers)

	geoms, err := c.Geometries(ctx, "AOI")
	require.NoError(t, err)
	assert.Len(t, geoms, 1)

	var minX, maxY float64
	require.NoError(t, c.DB().QueryRowContext(ctx,
		`SELECT min_x, max_y FROM gpkg_contents WHERE table_name = 'AOI'`).Scan(&minX, &maxY))
	assert.Equal(t, 1.0, minX)
	assert.Equal(t, 2.0, maxY)
}

func TestAttributeColumns(t *testing.T) {
	got := attributeColumns([]Field{{Name: "FID"}, {Name: "geom"}, {Name: "name"}, {Name: "geom_1"}})
	assert.Equal(t, []string{"FID_1", "geom_1", "name", "geom_1_1"}, got)
}

func TestFieldType(t *testing.T) {
	cases := []struct {
		dbType string
		sample any
		want   string
	}{
		{"INT4", nil, TypeInteger},
		{"numeric", "1.5", TypeReal},
		{"BOOL", nil, TypeBoolean},
		{"TIMESTAMPTZ", nil, TypeDateTime},
		{"DATE", nil, TypeDate},
		{"BYTEA", nil, TypeBlob},
		{"VARCHAR", int64(1), TypeText},
		{"numeric(10,2)", nil, TypeReal},
		{"double precision", nil, TypeReal},
		{"timestamp(3) with time zone", nil, TypeDateTime},
		{"timestamp without time zone", nil, TypeDateTime},
		{"character varying(50)", nil, TypeText},
		{"integer[]", nil, TypeText},
		{"uuid", []byte("5b1c"), TypeText},
		{"", int64(1), TypeInteger},
		{"", 2.5, TypeReal},
		{"", "x", TypeText},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FieldType(tc.dbType, tc.sample), "%s/%v", tc.dbType, tc.sample)
	}
}

func TestCoerce(t *testing.T) {
	assert.Nil(t, Coerce(TypeText, nil))
	assert.Equal(t, 1.25, Coerce(TypeReal, "1.25"))
	assert.Equal(t, "n/a", Coerce(TypeReal, "n/a"))
	assert.Equal(t, int64(42), Coerce(TypeInteger, "42"))
	assert.Equal(t, int64(1), Coerce(TypeBoolean, true))
	assert.Equal(t, int64(0), Coerce(TypeBoolean, "false"))
	assert.Equal(t, "2024-05-06", Coerce(TypeDate, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, []byte("raw"), Coerce(TypeBlob, "raw"))
	assert.Equal(t, 12.5, Coerce(TypeReal, []byte("12.50")))
	assert.Equal(t, "5b1c", Coerce(TypeText, []byte("5b1c")))
	assert.Equal(t, []byte{0xff}, Coerce(TypeBlob, []byte{0xff}))
	assert.Equal(t, "[1 2]", Coerce(TypeText, []int{1, 2}))
}

func TestContainer_WriteLayerReplacesIgnoringCase(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, filepath.Join(t.TempDir(), "case.gpkg"))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteLayer(ctx, Layer{Name: "Parcels", SRID: 4674, GeometryType: "POLYGON",
		Features: []Feature{{Geometry: square(t, 0, 0)}, {Geometry: square(t, 2, 2)}}}))
	require.NoError(t, c.WriteLayer(ctx, Layer{Name: "parcels", SRID: 4674, GeometryType: "POLYGON",
		Features: []Feature{{Geometry: square(t, 4, 4)}}}))

	layers, err := c.Layers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"parcels"}, layers)

	var registered int
	require.NoError(t, c.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM gpkg_geometry_columns`).Scan(&registered))
	assert.Equal(t, 1, registered)

	geoms, err := c.Geometries(ctx, "parcels")
	require.NoError(t, err)
	assert.Len(t, geoms, 1)
}
