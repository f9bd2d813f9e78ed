package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestStripM_Point(t *testing.T) {
	p := geom.NewPointFlat(geom.XYZM, []float64{1, 2, 3, 4}).SetSRID(4674)

	got, err := StripM(p)
	require.NoError(t, err)

	assert.Equal(t, geom.XYZ, got.Layout())
	assert.Equal(t, []float64{1, 2, 3}, got.FlatCoords())
	assert.Equal(t, 4674, got.SRID())
}

func TestStripM_PolygonKeepsStructure(t *testing.T) {
	poly := geom.NewPolygonFlat(geom.XYZM, []float64{
		0, 0, 10, 1,
		4, 0, 11, 2,
		4, 4, 12, 3,
		0, 0, 10, 4,
		1, 1, 5, 5,
		2, 1, 5, 6,
		2, 2, 5, 7,
		1, 1, 5, 8,
	}, []int{16, 32})

	got, err := StripM(poly)
	require.NoError(t, err)

	out, ok := got.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, geom.XYZ, out.Layout())
	require.Equal(t, 2, out.NumLinearRings())
	assert.Equal(t, 4, out.LinearRing(0).NumCoords())
	assert.Equal(t, 4, out.LinearRing(1).NumCoords())
	assert.Equal(t, geom.Coord{4, 4, 12}, out.LinearRing(0).Coord(2))
	assert.Equal(t, geom.Coord{2, 1, 5}, out.LinearRing(1).Coord(1))
}

func TestStripM_MultiPolygonAndCollection(t *testing.T) {
	mp := geom.NewMultiPolygonFlat(geom.XYZM, []float64{
		0, 0, 1, 9, 1, 0, 1, 9, 1, 1, 1, 9, 0, 0, 1, 9,
		5, 5, 2, 9, 6, 5, 2, 9, 6, 6, 2, 9, 5, 5, 2, 9,
	}, [][]int{{16}, {32}})
	line := geom.NewLineStringFlat(geom.XYZM, []float64{0, 0, 0, 1, 1, 1, 1, 2})
	gc := geom.NewGeometryCollection()
	require.NoError(t, gc.Push(mp, line))

	got, err := StripM(gc)
	require.NoError(t, err)

	out := got.(*geom.GeometryCollection)
	require.Len(t, out.Geoms(), 2)

	outMP := out.Geoms()[0].(*geom.MultiPolygon)
	assert.Equal(t, geom.XYZ, outMP.Layout())
	assert.Equal(t, 2, outMP.NumPolygons())
	assert.Equal(t, geom.Coord{6, 6, 2}, outMP.Polygon(1).LinearRing(0).Coord(2))

	outLine := out.Geoms()[1].(*geom.LineString)
	assert.Equal(t, []float64{0, 0, 0, 1, 1, 1}, outLine.FlatCoords())
}

func TestStripM_IdempotentOnOtherLayouts(t *testing.T) {
	for _, g := range []geom.T{
		geom.NewPointFlat(geom.XY, []float64{1, 2}),
		geom.NewLineStringFlat(geom.XYZ, []float64{0, 0, 1, 1, 1, 2}),
		geom.NewPointFlat(geom.XYM, []float64{1, 2, 7}),
	} {
		got, err := StripM(g)
		require.NoError(t, err)
		assert.Same(t, g, got)
	}

	once, err := StripM(geom.NewPointFlat(geom.XYZM, []float64{1, 2, 3, 4}))
	require.NoError(t, err)
	twice, err := StripM(once)
	require.NoError(t, err)
	assert.Equal(t, once.FlatCoords(), twice.FlatCoords())
	assert.Equal(t, once.Layout(), twice.Layout())
}
