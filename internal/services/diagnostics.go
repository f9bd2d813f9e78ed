package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"diglet/internal/config"
	"diglet/internal/models"

	"go.uber.org/zap"
)

// Aggregator turns scan results into display structures.
type Aggregator struct {
	sampleValues  int
	displayLength int
	logr          *zap.Logger
}

func NewAggregator(cfg *config.Config, logr *zap.Logger) *Aggregator {
	return &Aggregator{sampleValues: cfg.SampleValues, displayLength: cfg.DisplayLength, logr: logr}
}

// BuildHierarchy returns one checked node per table, its columns as
// children and up to sampleValues distinct sample values under each column.
// A table that cannot be rendered is logged and left out.
func (a *Aggregator) BuildHierarchy(results []models.IntersectionResult) []models.DiagnosticNode {
	nodes := make([]models.DiagnosticNode, 0, len(results))
	for _, r := range results {
		node, err := a.renderTable(r)
		if err != nil {
			a.logr.Error("failed to render table", zap.String("table", r.Table), zap.Error(err))
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func (a *Aggregator) renderTable(r models.IntersectionResult) (node models.DiagnosticNode, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render panic: %v", p)
		}
	}()

	checked := true
	node = models.DiagnosticNode{Name: r.Table, Checked: &checked}

	rows := make([][]any, 0, len(r.Rows))
	for i, row := range r.Rows {
		if len(row) != len(r.Columns) {
			a.logr.Warn("skipping malformed sample row",
				zap.String("table", r.Table),
				zap.Int("row", i),
				zap.Int("values", len(row)),
				zap.Int("columns", len(r.Columns)),
			)
			continue
		}
		rows = append(rows, row)
	}

	for col, name := range r.Columns {
		column := models.DiagnosticNode{Name: name}
		seen := make(map[string]bool)
		for _, row := range rows {
			if len(column.Children) >= a.sampleValues {
				break
			}
			text, ok := a.displayValue(row[col])
			if !ok || seen[text] {
				continue
			}
			seen[text] = true
			column.Children = append(column.Children, models.DiagnosticNode{Name: text})
		}
		node.Children = append(node.Children, column)
	}
	return node, nil
}

// displayValue renders a sample value as trimmed text, reporting false for
// nil, empty and composite values.
func (a *Aggregator) displayValue(v any) (string, bool) {
	var text string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		text = t
	case []byte:
		if !utf8.Valid(t) {
			return "", false
		}
		text = string(t)
	case time.Time:
		text = t.Format(time.RFC3339)
	case float64:
		text = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		switch reflect.ValueOf(v).Kind() {
		case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
			return "", false
		}
		text = fmt.Sprint(v)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return truncateRunes(text, a.displayLength), true
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// BuildCountReport lists table and match count in result order.
func BuildCountReport(results []models.IntersectionResult) []models.CountRow {
	rows := make([]models.CountRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, models.CountRow{Table: r.Table, Count: r.Count})
	}
	return rows
}

// WriteCountReportCSV writes the report as UTF-8 CSV with a byte order mark
// so spreadsheet tools detect the encoding.
func WriteCountReportCSV(w io.Writer, rows []models.CountRow) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"table", "features"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Table, strconv.FormatInt(r.Count, 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
