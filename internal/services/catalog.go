package services

import (
	"context"
	"sort"
	"strings"

	"diglet/internal/config"
	"diglet/internal/models"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

var systemSchemas = []string{"pg_catalog", "information_schema", "pg_toast"}

type CatalogService struct {
	db         *bun.DB
	geomColumn string
	logr       *zap.Logger
}

func NewCatalogService(db *bun.DB, cfg *config.Config, logr *zap.Logger) *CatalogService {
	return &CatalogService{db: db, geomColumn: cfg.GeometryColumn, logr: logr}
}

// ListSchemas returns the user schemas of the database in name order.
func (s *CatalogService) ListSchemas(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.NewSelect().
		TableExpr("information_schema.schemata").
		Column("schema_name").
		Where("schema_name NOT IN (?)", bun.In(systemSchemas)).
		OrderExpr("schema_name ASC").
		Scan(ctx, &names)
	if err != nil {
		s.logr.Error("failed to list schemas", zap.Error(err))
		return nil, models.NewOpError(models.CatalogQueryError, "list schemas", "", err)
	}
	return filterSchemas(names), nil
}

// ListGeometryTables returns the tables of schema registered in
// geometry_columns under the configured geometry column.
func (s *CatalogService) ListGeometryTables(ctx context.Context, schema string) ([]string, error) {
	var names []string
	err := s.db.NewSelect().
		TableExpr("geometry_columns").
		Distinct().
		Column("f_table_name").
		Where("f_table_schema = ?", schema).
		Where("f_geometry_column = ?", s.geomColumn).
		OrderExpr("f_table_name ASC").
		Scan(ctx, &names)
	if err != nil {
		s.logr.Error("failed to list geometry tables", zap.String("schema", schema), zap.Error(err))
		return nil, models.NewOpError(models.CatalogQueryError, "list geometry tables", schema, err)
	}
	sort.Strings(names)
	return names, nil
}

// filterSchemas drops system and per-backend temporary schemas and sorts.
func filterSchemas(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if isSystemSchema(n) {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func isSystemSchema(name string) bool {
	for _, s := range systemSchemas {
		if name == s {
			return true
		}
	}
	return strings.HasPrefix(name, "pg_temp_") || strings.HasPrefix(name, "pg_toast_temp_")
}

// restrictTables keeps the requested tables that the catalog lists, in
// catalog order. An empty request selects the whole listing.
func restrictTables(listed, requested []string) (kept, unknown []string) {
	if len(requested) == 0 {
		return listed, nil
	}
	want := make(map[string]bool, len(requested))
	for _, r := range requested {
		want[r] = true
	}
	for _, t := range listed {
		if want[t] {
			kept = append(kept, t)
			delete(want, t)
		}
	}
	for _, r := range requested {
		if want[r] {
			unknown = append(unknown, r)
			delete(want, r)
		}
	}
	return kept, unknown
}
