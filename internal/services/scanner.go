package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"diglet/internal/config"
	"diglet/internal/database"
	"diglet/internal/models"

	"github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"
)

var ErrSuspiciousIdentifier = errors.New("identifier rejected by SQL injection screening")

// ProgressFunc is called after each table of a scan or export.
type ProgressFunc func(done, total int, table string)

// Scanner counts, per table, the rows whose geometry intersects the AOI.
type Scanner struct {
	q           database.Querier
	logr        *zap.Logger
	srid        int
	geomColumn  string
	sampleLimit int

	// Progress, when set, is called after every table.
	Progress ProgressFunc
}

func NewScanner(q database.Querier, cfg *config.Config, logr *zap.Logger) *Scanner {
	return &Scanner{
		q:           q,
		logr:        logr,
		srid:        cfg.TargetSRID,
		geomColumn:  cfg.GeometryColumn,
		sampleLimit: cfg.SampleLimit,
	}
}

// guardedPredicate only lets ST_Intersects see geometries that are valid and
// in the target SRID. $1 is the AOI WKT, $2 its SRID.
func guardedPredicate(geomCol string) string {
	return fmt.Sprintf(`%[1]s IS NOT NULL AND CASE WHEN ST_IsValid(%[1]s) AND ST_SRID(%[1]s) = $2 `+
		`THEN ST_Intersects(%[1]s, ST_GeomFromText($1, $2)) ELSE false END`, database.QuoteIdent(geomCol))
}

func countQuery(schema, table, geomCol string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s",
		database.QualifiedTable(schema, table), guardedPredicate(geomCol))
}

func sampleQuery(schema, table, geomCol string, limit int) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT %d",
		database.QualifiedTable(schema, table), guardedPredicate(geomCol), limit)
}

// screenIdentifier refuses names libinjection recognizes as SQL fragments.
func screenIdentifier(name string) error {
	if isSQLi, fingerprint := libinjection.IsSQLi(name); isSQLi {
		return fmt.Errorf("%w: %q (fingerprint %s)", ErrSuspiciousIdentifier, name, fingerprint)
	}
	return nil
}

// Scan checks every table in order. A failing table is recorded in the
// report and the scan moves on; a cancelled context stops between tables
// and returns the partial report with the context error.
func (s *Scanner) Scan(ctx context.Context, schema string, tables []string, aoiWKT string) (*models.ScanReport, error) {
	report := &models.ScanReport{Schema: schema}

	s.logr.Info("scan started", zap.String("schema", schema), zap.Int("tables", len(tables)))

	for i, table := range tables {
		if err := ctx.Err(); err != nil {
			s.logr.Warn("scan cancelled", zap.String("schema", schema), zap.Int("scanned", report.Scanned))
			return report, err
		}

		result, err := s.scanTable(ctx, schema, table, aoiWKT)
		report.Scanned++
		switch {
		case err != nil:
			s.logr.Error("table scan failed",
				zap.String("schema", schema),
				zap.String("table", table),
				zap.Error(err),
			)
			report.Failures = append(report.Failures, models.TableFailure{Table: table, Reason: err.Error()})
		case result != nil:
			s.logr.Info("table intersects AOI", zap.String("table", table), zap.Int64("count", result.Count))
			report.Results = append(report.Results, *result)
		}

		if s.Progress != nil {
			s.Progress(i+1, len(tables), table)
		}
	}

	s.logr.Info("scan finished",
		zap.String("schema", schema),
		zap.Int("matches", len(report.Results)),
		zap.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// scanTable returns nil without error when nothing intersects.
func (s *Scanner) scanTable(ctx context.Context, schema, table, aoiWKT string) (*models.IntersectionResult, error) {
	target := schema + "." + table
	fail := func(op string, err error) error {
		return models.NewOpError(models.TableScanError, op, target, err)
	}

	for _, ident := range []string{schema, table} {
		if err := screenIdentifier(ident); err != nil {
			return nil, fail("screen identifier", err)
		}
	}

	rs, err := s.q.Query(ctx, countQuery(schema, table, s.geomColumn), aoiWKT, s.srid)
	if err != nil {
		return nil, fail("count intersections", err)
	}
	if len(rs.Rows) != 1 || len(rs.Rows[0]) != 1 {
		return nil, fail("count intersections", fmt.Errorf("expected one count, got %d rows", len(rs.Rows)))
	}
	count, err := toInt64(rs.Rows[0][0])
	if err != nil {
		return nil, fail("count intersections", err)
	}
	if count == 0 {
		return nil, nil
	}

	sample, err := s.q.Query(ctx, sampleQuery(schema, table, s.geomColumn, s.sampleLimit), aoiWKT, s.srid)
	if err != nil {
		return nil, fail("sample rows", err)
	}
	columns, rows := dropColumn(sample, s.geomColumn)
	rows = textRows(rows)

	return &models.IntersectionResult{
		Table:   table,
		Count:   count,
		Columns: columns,
		Rows:    rows,
	}, nil
}

// dropColumn removes one column from the names and every row.
func dropColumn(rs *database.RowSet, name string) ([]string, [][]any) {
	idx := rs.ColumnIndex(name)
	if idx < 0 {
		return rs.Columns, rs.Rows
	}
	columns := make([]string, 0, len(rs.Columns)-1)
	columns = append(columns, rs.Columns[:idx]...)
	columns = append(columns, rs.Columns[idx+1:]...)

	rows := make([][]any, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		if idx >= len(r) {
			rows = append(rows, r)
			continue
		}
		row := make([]any, 0, len(r)-1)
		row = append(row, r[:idx]...)
		row = append(row, r[idx+1:]...)
		rows = append(rows, row)
	}
	return columns, rows
}

// textRows copies rows with undecoded driver bytes turned into text, so the
// sample renders as strings rather than base64 in JSON.
func textRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = database.TextValue("", v)
		}
		out[i] = row
	}
	return out
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}
