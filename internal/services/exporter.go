package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"diglet/internal/config"
	"diglet/internal/database"
	"diglet/internal/geometry"
	"diglet/internal/geopackage"
	"diglet/internal/models"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"
)

const (
	ewkbColumn  = "__diglet_ewkb"
	validColumn = "__diglet_valid"
)

// Exporter writes the AOI and the intersecting rows of selected tables into
// one GeoPackage.
type Exporter struct {
	q          database.Querier
	logr       *zap.Logger
	srid       int
	geomColumn string

	// Progress, when set, is called after every table.
	Progress ProgressFunc
}

func NewExporter(q database.Querier, cfg *config.Config, logr *zap.Logger) *Exporter {
	return &Exporter{q: q, logr: logr, srid: cfg.TargetSRID, geomColumn: cfg.GeometryColumn}
}

func probeQuery(schema, table string) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT 0", database.QualifiedTable(schema, table))
}

// columnTypesQuery names the type of every live column of $1, a qualified
// table name. pgdriver does not report column types, so the probe alone
// cannot type the attributes.
const columnTypesQuery = `SELECT a.attname, format_type(a.atttypid, a.atttypmod) FROM pg_attribute AS a ` +
	`WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped ORDER BY a.attnum`

// exportQuery fetches SRID-matching rows that intersect the AOI. Invalid
// geometries never reach ST_Intersects; they are fetched when their bounding
// box overlaps the AOI so the export can count what it drops.
func exportQuery(schema, table, geomCol string) string {
	g := "t." + database.QuoteIdent(geomCol)
	return fmt.Sprintf(`SELECT t.*, ST_AsEWKB(%[2]s) AS %[3]s, ST_IsValid(%[2]s) AS %[4]s FROM %[1]s AS t `+
		`WHERE %[2]s IS NOT NULL AND ST_SRID(%[2]s) = $2 AND CASE WHEN ST_IsValid(%[2]s) `+
		`THEN ST_Intersects(%[2]s, ST_GeomFromText($1, $2)) ELSE %[2]s && ST_GeomFromText($1, $2) END`,
		database.QualifiedTable(schema, table), g, ewkbColumn, validColumn)
}

// Export writes the AOI layer, then one layer per included table. The run
// fails only when the container or the AOI layer cannot be written; every
// table failure is recorded in the report.
func (e *Exporter) Export(
	ctx context.Context,
	outputPath string,
	aoi models.AOIGeometry,
	schema string,
	selection models.LayerSelection,
) (*models.ExportReport, error) {
	report := &models.ExportReport{Path: outputPath}

	gpkg, err := geopackage.Open(ctx, outputPath)
	if err != nil {
		e.logr.Error("failed to open output container", zap.String("path", outputPath), zap.Error(err))
		return report, models.NewOpError(models.ExportError, "open container", outputPath, err)
	}
	defer gpkg.Close()

	if err := e.writeAOI(ctx, gpkg, aoi); err != nil {
		e.logr.Error("failed to write AOI layer", zap.String("path", outputPath), zap.Error(err))
		return report, models.NewOpError(models.ExportError, "write AOI layer", outputPath, err)
	}
	report.AOIWritten = true
	e.logr.Info("AOI layer written", zap.String("path", outputPath))

	// SQLite table names are case-insensitive; a table may not shadow the AOI
	// or another table of this run
	used := map[string]bool{strings.ToLower(models.AOILayerName): true}

	tables := selection.Included()
	for i, table := range tables {
		if err := ctx.Err(); err != nil {
			e.logr.Warn("export cancelled", zap.String("path", outputPath), zap.Int("layers", len(report.Layers)))
			return report, err
		}

		layerName := uniqueLayerName(used, table)
		if layerName != table {
			e.logr.Warn("layer renamed to avoid a name collision",
				zap.String("table", table),
				zap.String("layer", layerName),
			)
		}

		lr, err := e.exportTable(ctx, gpkg, schema, table, layerName, aoi)
		if err != nil {
			lr.Outcome = models.LayerFailed
			lr.Reason = err.Error()
			e.logr.Error("layer export failed",
				zap.String("schema", schema),
				zap.String("table", table),
				zap.Error(err),
			)
		}
		report.Layers = append(report.Layers, lr)

		if e.Progress != nil {
			e.Progress(i+1, len(tables), table)
		}
	}

	e.logr.Info("export finished",
		zap.String("path", outputPath),
		zap.Int("written", report.Count(models.LayerWritten)),
		zap.Int("skipped_empty", report.Count(models.LayerSkippedEmpty)),
		zap.Int("skipped_invalid", report.Count(models.LayerSkippedAll)),
		zap.Int("failed", report.Count(models.LayerFailed)),
	)
	return report, nil
}

func (e *Exporter) writeAOI(ctx context.Context, gpkg *geopackage.Container, aoi models.AOIGeometry) error {
	g, err := wkt.Unmarshal(aoi.WKT)
	if err != nil {
		return fmt.Errorf("parse AOI WKT: %w", err)
	}
	return gpkg.WriteLayer(ctx, geopackage.Layer{
		Name:         models.AOILayerName,
		SRID:         aoi.SRID,
		GeometryType: geometry.TypeName(g),
		Fields:       []geopackage.Field{{Name: "source", Type: geopackage.TypeText}},
		Features:     []geopackage.Feature{{Geometry: g, Attributes: []any{aoi.Source}}},
	})
}

// exportTable returns the layer outcome; a non-nil error means the layer
// failed and is already wrapped as an ExportLayerError.
func (e *Exporter) exportTable(
	ctx context.Context,
	gpkg *geopackage.Container,
	schema, table, layerName string,
	aoi models.AOIGeometry,
) (models.LayerReport, error) {
	lr := models.LayerReport{Layer: layerName, Table: table}
	fail := func(op string, err error) (models.LayerReport, error) {
		return lr, models.NewOpError(models.ExportLayerError, op, schema+"."+table, err)
	}

	for _, ident := range []string{schema, table} {
		if err := screenIdentifier(ident); err != nil {
			return fail("screen identifier", err)
		}
	}

	probe, err := e.q.Query(ctx, probeQuery(schema, table))
	if err != nil {
		return fail("probe columns", err)
	}

	types := e.columnTypes(ctx, schema, table)

	rs, err := e.q.Query(ctx, exportQuery(schema, table, e.geomColumn), aoi.WKT, e.srid)
	if err != nil {
		return fail("fetch rows", err)
	}
	lr.Fetched = len(rs.Rows)
	if lr.Fetched == 0 {
		lr.Outcome = models.LayerSkippedEmpty
		e.logr.Info("no features to export", zap.String("table", table))
		return lr, nil
	}

	ewkbIdx, validIdx := rs.ColumnIndex(ewkbColumn), rs.ColumnIndex(validColumn)
	if ewkbIdx < 0 || validIdx < 0 {
		return fail("fetch rows", fmt.Errorf("geometry columns missing from result"))
	}

	fields, dbTypes, attrIdx := e.attributeSchema(probe, types, rs)

	var features []geopackage.Feature
	for _, row := range rs.Rows {
		g, ok := e.usableGeometry(row[ewkbIdx], row[validIdx])
		if !ok {
			lr.Dropped++
			continue
		}
		attrs := make([]any, len(attrIdx))
		for i, idx := range attrIdx {
			if idx >= 0 {
				attrs[i] = database.TextValue(dbTypes[i], row[idx])
			}
		}
		features = append(features, geopackage.Feature{Geometry: g, Attributes: attrs})
	}

	if len(features) == 0 {
		lr.Outcome = models.LayerSkippedAll
		lr.Reason = fmt.Sprintf("all %d fetched geometries are invalid or empty", lr.Fetched)
		e.logr.Warn("layer skipped, no valid geometries",
			zap.String("table", table),
			zap.Int("dropped", lr.Dropped),
		)
		return lr, nil
	}
	if lr.Dropped > 0 {
		e.logr.Info("dropped invalid or empty geometries", zap.String("table", table), zap.Int("dropped", lr.Dropped))
	}

	geoms := make([]geom.T, len(features))
	for i, f := range features {
		geoms[i] = f.Geometry
	}
	if anyHasM(geoms) {
		for i := range features {
			stripped, err := geometry.StripM(features[i].Geometry)
			if err != nil {
				return fail("strip M ordinate", err)
			}
			features[i].Geometry = stripped
			geoms[i] = stripped
		}
		lr.ConvertedZM = true
		e.logr.Info("converted ZM geometries to Z", zap.String("table", table))
	}

	for i := range fields {
		if fields[i].Type == "" {
			fields[i].Type = geopackage.FieldType("", firstNonNil(features, i))
		}
	}

	z, m := geometry.LayerDims(geoms)
	layer := geopackage.Layer{
		Name:         layerName,
		SRID:         e.srid,
		GeometryType: geometry.LayerType(geoms),
		Z:            z,
		M:            m,
		Fields:       fields,
		Features:     features,
	}
	if err := gpkg.WriteLayer(ctx, layer); err != nil {
		return fail("write layer", err)
	}

	lr.Outcome = models.LayerWritten
	lr.Features = len(features)
	e.logr.Info("layer written",
		zap.String("table", table),
		zap.Int("features", lr.Features),
		zap.String("geometry_type", layer.GeometryType),
	)
	return lr, nil
}

// columnTypes returns the catalog type of each column by name. A failed
// lookup is logged and leaves the attributes to be typed from their values.
func (e *Exporter) columnTypes(ctx context.Context, schema, table string) map[string]string {
	rs, err := e.q.Query(ctx, columnTypesQuery, database.QualifiedTable(schema, table))
	if err != nil {
		e.logr.Warn("column types unavailable, inferring from values",
			zap.String("schema", schema),
			zap.String("table", table),
			zap.Error(err),
		)
		return nil
	}
	types := make(map[string]string, len(rs.Rows))
	for _, row := range rs.Rows {
		if len(row) < 2 {
			continue
		}
		name, _ := database.TextValue("", row[0]).(string)
		typ, _ := database.TextValue("", row[1]).(string)
		if name != "" {
			types[name] = typ
		}
	}
	return types
}

// attributeSchema derives the attribute fields from the zero-row probe and
// maps each to its position in the fetched rows. Columns with no known type
// are left untyped for inference from the data.
func (e *Exporter) attributeSchema(probe *database.RowSet, types map[string]string, rs *database.RowSet) ([]geopackage.Field, []string, []int) {
	var fields []geopackage.Field
	var dbTypes []string
	var idx []int
	for i, name := range probe.Columns {
		if name == e.geomColumn {
			continue
		}
		dbType := types[name]
		if dbType == "" && i < len(probe.Types) {
			dbType = probe.Types[i]
		}
		f := geopackage.Field{Name: name}
		if dbType != "" {
			f.Type = geopackage.FieldType(dbType, nil)
		}
		fields = append(fields, f)
		dbTypes = append(dbTypes, dbType)
		idx = append(idx, rs.ColumnIndex(name))
	}
	return fields, dbTypes, idx
}

// uniqueLayerName returns name, or name with the first free _n suffix when a
// layer of this run already uses it in any letter case. The result is
// recorded in used.
func uniqueLayerName(used map[string]bool, name string) string {
	candidate := name
	for n := 1; used[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// usableGeometry decodes the EWKB of a row and reports whether it may be
// exported: flagged valid by the database, structurally sound and not empty.
func (e *Exporter) usableGeometry(raw, valid any) (geom.T, bool) {
	if !truthy(valid) {
		return nil, false
	}
	data, err := ewkbBytes(raw)
	if err != nil {
		e.logr.Debug("undecodable geometry", zap.Error(err))
		return nil, false
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		e.logr.Debug("undecodable geometry", zap.Error(err))
		return nil, false
	}
	if err := geometry.Validate(g); err != nil {
		return nil, false
	}
	return g, true
}

// ewkbBytes accepts EWKB as raw bytes or as the hex text form PostgreSQL uses
// for bytea output.
func ewkbBytes(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		if len(t) > 2 && t[0] == '\\' && t[1] == 'x' {
			return hex.DecodeString(string(t[2:]))
		}
		return t, nil
	case string:
		return hex.DecodeString(strings.TrimPrefix(t, `\x`))
	case nil:
		return nil, fmt.Errorf("null geometry")
	default:
		return nil, fmt.Errorf("unexpected geometry value %T", v)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "t" || t == "true"
	case []byte:
		return string(t) == "t" || string(t) == "true"
	default:
		return false
	}
}

func anyHasM(gs []geom.T) bool {
	for _, g := range gs {
		if geometry.HasM(g) {
			return true
		}
	}
	return false
}

func firstNonNil(features []geopackage.Feature, col int) any {
	for _, f := range features {
		if col < len(f.Attributes) && f.Attributes[col] != nil {
			return f.Attributes[col]
		}
	}
	return nil
}
