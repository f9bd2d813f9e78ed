// Package geopackage writes OGC GeoPackage containers: SQLite files with the
// gpkg metadata tables and one feature table per layer.
package geopackage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"diglet/internal/geometry"

	"github.com/twpayne/go-geom"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10200

	// GeometryColumn is the geometry column of every feature table.
	GeometryColumn = "geom"
	fidColumn      = "fid"
)

// Contents is a row of gpkg_contents.
type Contents struct {
	bun.BaseModel `bun:"table:gpkg_contents"`

	TableName   string   `bun:"table_name,pk"`
	DataType    string   `bun:"data_type"`
	Identifier  string   `bun:"identifier"`
	Description string   `bun:"description"`
	LastChange  string   `bun:"last_change"`
	MinX        *float64 `bun:"min_x"`
	MinY        *float64 `bun:"min_y"`
	MaxX        *float64 `bun:"max_x"`
	MaxY        *float64 `bun:"max_y"`
	SRSID       int      `bun:"srs_id"`
}

// GeometryColumns is a row of gpkg_geometry_columns.
type GeometryColumns struct {
	bun.BaseModel `bun:"table:gpkg_geometry_columns"`

	TableName        string `bun:"table_name,pk"`
	ColumnName       string `bun:"column_name,pk"`
	GeometryTypeName string `bun:"geometry_type_name"`
	SRSID            int    `bun:"srs_id"`
	Z                int8   `bun:"z"`
	M                int8   `bun:"m"`
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
		srs_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL PRIMARY KEY,
		organization TEXT NOT NULL,
		organization_coordsys_id INTEGER NOT NULL,
		definition TEXT NOT NULL,
		description TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS gpkg_contents (
		table_name TEXT NOT NULL PRIMARY KEY,
		data_type TEXT NOT NULL,
		identifier TEXT UNIQUE,
		description TEXT DEFAULT '',
		last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		min_x DOUBLE,
		min_y DOUBLE,
		max_x DOUBLE,
		max_y DOUBLE,
		srs_id INTEGER,
		CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
	)`,
	`CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL,
		srs_id INTEGER NOT NULL,
		z TINYINT NOT NULL,
		m TINYINT NOT NULL,
		CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
		CONSTRAINT uk_gc_table_name UNIQUE (table_name),
		CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
		CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys (srs_id)
	)`,
}

// Feature is one row of a layer.
type Feature struct {
	Geometry   geom.T
	Attributes []any
}

// Layer describes a feature table and its rows.
type Layer struct {
	Name         string
	SRID         int
	GeometryType string
	Z, M         int
	Fields       []Field
	Features     []Feature
}

// Container is an open GeoPackage file.
type Container struct {
	db   *bun.DB
	path string
}

// Open opens the GeoPackage at path, creating the file and its metadata
// tables when absent. Existing layers are preserved.
func Open(ctx context.Context, path string) (*Container, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sqldb.SetMaxOpenConns(1)

	c := &Container{db: bun.NewDB(sqldb, sqlitedialect.New()), path: path}
	if err := c.init(ctx); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) init(ctx context.Context) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA application_id = %d", applicationID),
		fmt.Sprintf("PRAGMA user_version = %d", userVersion),
	}
	for _, stmt := range append(pragmas, schemaDDL...) {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialize geopackage: %w", err)
		}
	}

	srs := append([]SpatialRefSys(nil), requiredSRS...)
	if _, err := c.db.NewInsert().
		Model(&srs).
		On("CONFLICT (srs_id) DO NOTHING").
		Exec(ctx); err != nil {
		return fmt.Errorf("insert spatial reference systems: %w", err)
	}
	return nil
}

// Path returns the file backing the container.
func (c *Container) Path() string { return c.path }

func (c *Container) Close() error {
	return c.db.Close()
}

// DB exposes the underlying handle for read-back queries.
func (c *Container) DB() *bun.DB { return c.db }

// WriteLayer writes l as a feature table, replacing any layer of the same
// name. The whole layer is written in one transaction.
func (c *Container) WriteLayer(ctx context.Context, l Layer) error {
	if l.Name == "" {
		return fmt.Errorf("layer name is empty")
	}
	columns := attributeColumns(l.Fields)

	srs := knownSRS(l.SRID)
	if _, err := c.db.NewInsert().
		Model(&srs).
		On("CONFLICT (srs_id) DO NOTHING").
		Exec(ctx); err != nil {
		return fmt.Errorf("register srs %d: %w", l.SRID, err)
	}

	return c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := dropLayer(ctx, tx, l.Name); err != nil {
			return err
		}

		ddl := fmt.Sprintf("CREATE TABLE ? (%s INTEGER PRIMARY KEY AUTOINCREMENT, ? %s",
			fidColumn, geometryTypeOrDefault(l.GeometryType))
		args := []any{bun.Ident(l.Name), bun.Ident(GeometryColumn)}
		for i, f := range l.Fields {
			ddl += ", ? " + f.Type
			args = append(args, bun.Ident(columns[i]))
		}
		ddl += ")"
		if _, err := tx.ExecContext(ctx, ddl, args...); err != nil {
			return fmt.Errorf("create table %s: %w", l.Name, err)
		}

		idents := make([]bun.Ident, 0, len(columns)+1)
		idents = append(idents, bun.Ident(GeometryColumn))
		for _, col := range columns {
			idents = append(idents, bun.Ident(col))
		}

		// values travel as driver arguments so NULL attributes reach sqlite as NULL
		insert := c.db.Formatter().FormatQuery("INSERT INTO ? (?) VALUES ", bun.Ident(l.Name), bun.In(idents)) +
			"(" + strings.TrimSuffix(strings.Repeat("?, ", len(idents)), ", ") + ")"
		stmt, err := tx.Tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("prepare insert into %s: %w", l.Name, err)
		}
		defer stmt.Close()

		ext := newExtent()
		for i, feat := range l.Features {
			blob, err := EncodeBlob(feat.Geometry, l.SRID)
			if err != nil {
				return fmt.Errorf("feature %d: %w", i, err)
			}
			ext.add(feat.Geometry)

			values := make([]any, 0, len(idents))
			values = append(values, blob)
			for j, f := range l.Fields {
				var v any
				if j < len(feat.Attributes) {
					v = Coerce(f.Type, feat.Attributes[j])
				}
				values = append(values, v)
			}
			if _, err := stmt.ExecContext(ctx, values...); err != nil {
				return fmt.Errorf("insert feature %d into %s: %w", i, l.Name, err)
			}
		}

		contents := Contents{
			TableName:  l.Name,
			DataType:   "features",
			Identifier: l.Name,
			LastChange: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
			SRSID:      l.SRID,
		}
		if ext.valid() {
			contents.MinX, contents.MinY = &ext.minX, &ext.minY
			contents.MaxX, contents.MaxY = &ext.maxX, &ext.maxY
		}
		if _, err := tx.NewInsert().Model(&contents).Exec(ctx); err != nil {
			return fmt.Errorf("register contents for %s: %w", l.Name, err)
		}

		gc := GeometryColumns{
			TableName:        l.Name,
			ColumnName:       GeometryColumn,
			GeometryTypeName: geometryTypeOrDefault(l.GeometryType),
			SRSID:            l.SRID,
			Z:                int8(l.Z),
			M:                int8(l.M),
		}
		if _, err := tx.NewInsert().Model(&gc).Exec(ctx); err != nil {
			return fmt.Errorf("register geometry column for %s: %w", l.Name, err)
		}
		return nil
	})
}

// dropLayer removes a layer and its registrations. SQLite table names are
// case-insensitive, so the registrations are matched the same way.
func dropLayer(ctx context.Context, tx bun.Tx, name string) error {
	if _, err := tx.NewDelete().
		Model((*GeometryColumns)(nil)).
		Where("lower(table_name) = lower(?)", name).
		Exec(ctx); err != nil {
		return fmt.Errorf("unregister geometry column for %s: %w", name, err)
	}
	if _, err := tx.NewDelete().
		Model((*Contents)(nil)).
		Where("lower(table_name) = lower(?)", name).
		Exec(ctx); err != nil {
		return fmt.Errorf("unregister contents for %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS ?", bun.Ident(name)); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	return nil
}

// Layers lists the feature tables registered in gpkg_contents.
func (c *Container) Layers(ctx context.Context) ([]string, error) {
	var names []string
	err := c.db.NewSelect().
		Model((*Contents)(nil)).
		Column("table_name").
		Where("data_type = ?", "features").
		Order("table_name").
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	return names, nil
}

// GeometryColumnOf returns the registered geometry column metadata of a layer.
func (c *Container) GeometryColumnOf(ctx context.Context, layer string) (*GeometryColumns, error) {
	gc := new(GeometryColumns)
	err := c.db.NewSelect().
		Model(gc).
		Where("table_name = ?", layer).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("geometry column of %s: %w", layer, err)
	}
	return gc, nil
}

// Geometries reads back the decoded geometries of a layer in fid order.
func (c *Container) Geometries(ctx context.Context, layer string) ([]geom.T, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT ? FROM ? ORDER BY ?",
		bun.Ident(GeometryColumn), bun.Ident(layer), bun.Ident(fidColumn))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", layer, err)
	}
	defer rows.Close()

	var blobs [][]byte
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan %s: %w", layer, err)
		}
		blobs = append(blobs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", layer, err)
	}

	out := make([]geom.T, 0, len(blobs))
	for _, b := range blobs {
		g, _, err := DecodeBlob(b)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// attributeColumns resolves output column names, renaming attributes that
// collide with the fid or geometry columns or with each other.
func attributeColumns(fields []Field) []string {
	used := map[string]bool{fidColumn: true, GeometryColumn: true}
	out := make([]string, len(fields))
	for i, f := range fields {
		name := f.Name
		for n := 1; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", f.Name, n)
		}
		used[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

func geometryTypeOrDefault(t string) string {
	if t == "" {
		return "GEOMETRY"
	}
	return t
}

type extent struct {
	minX, minY, maxX, maxY float64
}

func newExtent() *extent {
	return &extent{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
}

func (e *extent) add(g geom.T) {
	if geometry.IsEmpty(g) {
		return
	}
	b := g.Bounds()
	e.minX = math.Min(e.minX, b.Min(0))
	e.minY = math.Min(e.minY, b.Min(1))
	e.maxX = math.Max(e.maxX, b.Max(0))
	e.maxY = math.Max(e.maxY, b.Max(1))
}

func (e *extent) valid() bool {
	return e.minX <= e.maxX && e.minY <= e.maxY
}
