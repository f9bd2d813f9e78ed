package geometry

import "github.com/twpayne/go-geom"

// TypeName returns the GeoPackage geometry type name of g.
func TypeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "POINT"
	case *geom.LineString:
		return "LINESTRING"
	case *geom.Polygon:
		return "POLYGON"
	case *geom.MultiPoint:
		return "MULTIPOINT"
	case *geom.MultiLineString:
		return "MULTILINESTRING"
	case *geom.MultiPolygon:
		return "MULTIPOLYGON"
	case *geom.GeometryCollection:
		return "GEOMETRYCOLLECTION"
	default:
		return "GEOMETRY"
	}
}

// LayerType returns the shared type name of gs, or GEOMETRY when they differ.
func LayerType(gs []geom.T) string {
	name := ""
	for _, g := range gs {
		n := TypeName(g)
		if name == "" {
			name = n
		} else if name != n {
			return "GEOMETRY"
		}
	}
	if name == "" {
		return "GEOMETRY"
	}
	return name
}

// LayerDims returns the GeoPackage z and m flags for gs: 1 when every
// geometry carries the ordinate, 2 when only some do, 0 when none do.
func LayerDims(gs []geom.T) (z, m int) {
	var withZ, withM int
	for _, g := range gs {
		l := g.Layout()
		if l.ZIndex() != -1 {
			withZ++
		}
		if l.MIndex() != -1 {
			withM++
		}
	}
	return dimFlag(withZ, len(gs)), dimFlag(withM, len(gs))
}

func dimFlag(n, total int) int {
	switch {
	case n == 0:
		return 0
	case n == total:
		return 1
	default:
		return 2
	}
}
