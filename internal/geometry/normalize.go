// Package geometry holds the checks and rewrites applied to feature
// geometries before they are written to a GeoPackage.
package geometry

import (
	"fmt"

	"github.com/twpayne/go-geom"
)

// HasM reports whether g carries a measure next to X, Y and Z.
func HasM(g geom.T) bool {
	return g != nil && g.Layout() == geom.XYZM
}

// StripM rewrites an XYZM geometry as XYZ, dropping the measure at every
// point while keeping point counts and nesting. Any other layout is returned
// unchanged.
func StripM(g geom.T) (geom.T, error) {
	if !HasM(g) {
		return g, nil
	}

	switch t := g.(type) {
	case *geom.Point:
		if len(t.FlatCoords()) == 0 {
			return geom.NewPointEmpty(geom.XYZ).SetSRID(t.SRID()), nil
		}
		p, err := geom.NewPoint(geom.XYZ).SetCoords(stripCoord(t.Coords()))
		if err != nil {
			return nil, err
		}
		return p.SetSRID(t.SRID()), nil
	case *geom.LineString:
		ls, err := geom.NewLineString(geom.XYZ).SetCoords(stripCoords(t.Coords()))
		if err != nil {
			return nil, err
		}
		return ls.SetSRID(t.SRID()), nil
	case *geom.Polygon:
		p, err := geom.NewPolygon(geom.XYZ).SetCoords(stripRings(t.Coords()))
		if err != nil {
			return nil, err
		}
		return p.SetSRID(t.SRID()), nil
	case *geom.MultiPoint:
		mp, err := geom.NewMultiPoint(geom.XYZ).SetCoords(stripCoords(t.Coords()))
		if err != nil {
			return nil, err
		}
		return mp.SetSRID(t.SRID()), nil
	case *geom.MultiLineString:
		mls, err := geom.NewMultiLineString(geom.XYZ).SetCoords(stripRings(t.Coords()))
		if err != nil {
			return nil, err
		}
		return mls.SetSRID(t.SRID()), nil
	case *geom.MultiPolygon:
		polys := t.Coords()
		out := make([][][]geom.Coord, len(polys))
		for i, rings := range polys {
			out[i] = stripRings(rings)
		}
		mp, err := geom.NewMultiPolygon(geom.XYZ).SetCoords(out)
		if err != nil {
			return nil, err
		}
		return mp.SetSRID(t.SRID()), nil
	case *geom.GeometryCollection:
		gc := geom.NewGeometryCollection()
		for _, child := range t.Geoms() {
			stripped, err := StripM(child)
			if err != nil {
				return nil, err
			}
			if err := gc.Push(stripped); err != nil {
				return nil, err
			}
		}
		return gc.SetSRID(t.SRID()), nil
	default:
		return nil, fmt.Errorf("strip measure: unsupported geometry %T", g)
	}
}

func stripCoord(c geom.Coord) geom.Coord {
	return geom.Coord{c[0], c[1], c[2]}
}

func stripCoords(cs []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, len(cs))
	for i, c := range cs {
		out[i] = stripCoord(c)
	}
	return out
}

func stripRings(rings [][]geom.Coord) [][]geom.Coord {
	out := make([][]geom.Coord, len(rings))
	for i, r := range rings {
		out[i] = stripCoords(r)
	}
	return out
}
