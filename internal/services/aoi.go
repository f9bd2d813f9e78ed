package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"diglet/internal/database"
	"diglet/internal/models"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"go.uber.org/zap"
)

var (
	ErrNoFeatures     = errors.New("file has no features")
	ErrNotPolygonal   = errors.New("AOI features must be polygons or multipolygons")
	ErrUnsupportedCRS = errors.New("unsupported coordinate reference system")
)

const (
	sridWGS84       = 4326
	sridSIRGAS2000  = 4674
	sridWebMercator = 3857
)

// Merger performs the geometry operations the loader cannot do in process.
// PostGISMerger is the production implementation.
type Merger interface {
	Transform(ctx context.Context, wkt string, from, to int) (string, error)
	Union(ctx context.Context, wkt string, srid int) (string, error)
}

// AOILoader reads an area of interest from a GeoJSON file and expresses it
// as one geometry in the target SRID.
type AOILoader struct {
	merger Merger
	srid   int
	logr   *zap.Logger
}

func NewAOILoader(merger Merger, srid int, logr *zap.Logger) *AOILoader {
	return &AOILoader{merger: merger, srid: srid, logr: logr}
}

// Load reads path and returns the merged AOI. Every failure is an AOIReadError.
func (l *AOILoader) Load(ctx context.Context, path string) (models.AOIGeometry, error) {
	aoi, err := l.load(ctx, path)
	if err != nil {
		l.logr.Error("failed to load AOI", zap.String("path", path), zap.Error(err))
		return models.AOIGeometry{}, models.NewOpError(models.AOIReadError, "load AOI", path, err)
	}
	l.logr.Info("AOI loaded",
		zap.String("path", path),
		zap.Int("features", aoi.FeatureCount),
		zap.Int("source_srid", aoi.SourceSRID),
		zap.Int("srid", aoi.SRID),
	)
	return aoi, nil
}

func (l *AOILoader) load(ctx context.Context, path string) (models.AOIGeometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.AOIGeometry{}, err
	}

	polygons, features, srcSRID, err := parseAOI(data)
	if err != nil {
		return models.AOIGeometry{}, err
	}

	srid := srcSRID
	if srid == sridWebMercator {
		for i := range polygons {
			polygons[i] = project.Polygon(polygons[i], project.Mercator.ToWGS84)
		}
		srid = sridWGS84
	}

	var g orb.Geometry
	if len(polygons) == 1 {
		g = polygons[0]
	} else {
		g = orb.MultiPolygon(polygons)
	}
	text := wkt.MarshalString(g)

	if !sameGeographicFrame(srid, l.srid) {
		if l.merger == nil {
			return models.AOIGeometry{}, fmt.Errorf("%w: EPSG:%d", ErrUnsupportedCRS, srid)
		}
		if text, err = l.merger.Transform(ctx, text, srid, l.srid); err != nil {
			return models.AOIGeometry{}, fmt.Errorf("reproject EPSG:%d to EPSG:%d: %w", srid, l.srid, err)
		}
	}

	if len(polygons) > 1 && l.merger != nil {
		if text, err = l.merger.Union(ctx, text, l.srid); err != nil {
			return models.AOIGeometry{}, fmt.Errorf("merge %d parts: %w", len(polygons), err)
		}
	}

	return models.AOIGeometry{
		SRID:         l.srid,
		WKT:          text,
		Source:       filepath.Base(path),
		SourceSRID:   srcSRID,
		FeatureCount: features,
	}, nil
}

// sameGeographicFrame treats WGS84 and SIRGAS 2000 as coincident, which holds
// at the precision an AOI is drawn with.
func sameGeographicFrame(a, b int) bool {
	if a == b {
		return true
	}
	geographic := func(s int) bool { return s == sridWGS84 || s == sridSIRGAS2000 }
	return geographic(a) && geographic(b)
}

type geojsonHeader struct {
	Type string `json:"type"`
	CRS  *struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

// parseAOI returns the polygons of a GeoJSON document, the number of
// features they came from and the declared source SRID.
func parseAOI(data []byte) ([]orb.Polygon, int, int, error) {
	var hdr geojsonHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, 0, 0, fmt.Errorf("parse GeoJSON: %w", err)
	}

	srid := sridWGS84
	if hdr.CRS != nil {
		s, err := parseCRSName(hdr.CRS.Properties.Name)
		if err != nil {
			return nil, 0, 0, err
		}
		srid = s
	}

	var geoms []orb.Geometry
	switch hdr.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("parse FeatureCollection: %w", err)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("parse Feature: %w", err)
		}
		geoms = append(geoms, f.Geometry)
	case "":
		return nil, 0, 0, fmt.Errorf("parse GeoJSON: missing type")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("parse geometry: %w", err)
		}
		geoms = append(geoms, g.Geometry())
	}

	if len(geoms) == 0 {
		return nil, 0, 0, ErrNoFeatures
	}

	var polygons []orb.Polygon
	for i, g := range geoms {
		switch t := g.(type) {
		case orb.Polygon:
			if len(t) == 0 {
				return nil, 0, 0, fmt.Errorf("feature %d: empty polygon", i)
			}
			polygons = append(polygons, t)
		case orb.MultiPolygon:
			for _, p := range t {
				if len(p) > 0 {
					polygons = append(polygons, p)
				}
			}
		default:
			return nil, 0, 0, fmt.Errorf("feature %d: %w", i, ErrNotPolygonal)
		}
	}
	if len(polygons) == 0 {
		return nil, 0, 0, ErrNoFeatures
	}

	return polygons, len(geoms), srid, nil
}

// parseCRSName understands EPSG:n, urn:ogc:def:crs:EPSG::n and CRS84 names.
func parseCRSName(name string) (int, error) {
	if strings.HasSuffix(strings.ToUpper(name), "CRS84") {
		return sridWGS84, nil
	}
	idx := strings.LastIndex(name, ":")
	if idx < 0 || !strings.Contains(strings.ToUpper(name), "EPSG") {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCRS, name)
	}
	code, err := strconv.Atoi(name[idx+1:])
	if err != nil || code <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCRS, name)
	}
	return code, nil
}

// PostGISMerger reprojects and dissolves AOI geometry in the database the
// session is connected to.
type PostGISMerger struct {
	q database.Querier
}

func NewPostGISMerger(q database.Querier) *PostGISMerger {
	return &PostGISMerger{q: q}
}

func (m *PostGISMerger) Transform(ctx context.Context, text string, from, to int) (string, error) {
	return m.scalar(ctx,
		`SELECT ST_AsText(ST_Transform(ST_GeomFromText($1, $2), $3::integer))`,
		text, from, to)
}

func (m *PostGISMerger) Union(ctx context.Context, text string, srid int) (string, error) {
	return m.scalar(ctx,
		`SELECT ST_AsText(ST_UnaryUnion(ST_GeomFromText($1, $2)))`,
		text, srid)
}

func (m *PostGISMerger) scalar(ctx context.Context, query string, args ...any) (string, error) {
	rs, err := m.q.Query(ctx, query, args...)
	if err != nil {
		return "", err
	}
	if len(rs.Rows) != 1 || len(rs.Rows[0]) != 1 {
		return "", fmt.Errorf("expected one value, got %d rows", len(rs.Rows))
	}
	switch v := rs.Rows[0][0].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unexpected result type %T", v)
	}
}
