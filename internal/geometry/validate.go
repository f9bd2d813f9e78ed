package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

var (
	ErrNilGeometry   = errors.New("geometry: nil geometry")
	ErrEmptyGeometry = errors.New("geometry: empty geometry")
)

// IsEmpty reports whether g has no coordinates at all.
func IsEmpty(g geom.T) bool {
	if g == nil {
		return true
	}
	if gc, ok := g.(*geom.GeometryCollection); ok {
		for _, child := range gc.Geoms() {
			if !IsEmpty(child) {
				return false
			}
		}
		return true
	}
	return len(g.FlatCoords()) == 0
}

// Validate performs the structural checks a feature must pass to be
// exported: non-empty, finite ordinates, lines with two or more points and
// closed rings of four or more points.
func Validate(g geom.T) error {
	if g == nil {
		return ErrNilGeometry
	}
	if IsEmpty(g) {
		return ErrEmptyGeometry
	}

	switch t := g.(type) {
	case *geom.Point:
		return finite(t.FlatCoords())
	case *geom.MultiPoint:
		return finite(t.FlatCoords())
	case *geom.LineString:
		return validateLine(t)
	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			if err := validateLine(t.LineString(i)); err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
		}
		return nil
	case *geom.Polygon:
		return validatePolygon(t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if err := validatePolygon(t.Polygon(i)); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	case *geom.GeometryCollection:
		for i, child := range t.Geoms() {
			if IsEmpty(child) {
				continue
			}
			if err := Validate(child); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("geometry: unsupported type %T", g)
	}
}

func validateLine(ls *geom.LineString) error {
	if ls.NumCoords() < 2 {
		return fmt.Errorf("geometry: line with %d point(s)", ls.NumCoords())
	}
	return finite(ls.FlatCoords())
}

func validatePolygon(p *geom.Polygon) error {
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		n := ring.NumCoords()
		if n < 4 {
			return fmt.Errorf("geometry: ring %d has %d points", i, n)
		}
		first, last := ring.Coord(0), ring.Coord(n-1)
		if first.X() != last.X() || first.Y() != last.Y() {
			return fmt.Errorf("geometry: ring %d is not closed", i)
		}
	}
	return finite(p.FlatCoords())
}

func finite(flat []float64) error {
	for _, v := range flat {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("geometry: non-finite ordinate")
		}
	}
	return nil
}
