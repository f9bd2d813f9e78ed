package models

import "sort"

// TableCandidate is a table registered in geometry_columns.
type TableCandidate struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// Qualified returns schema.table for logging.
func (t TableCandidate) Qualified() string {
	return t.Schema + "." + t.Name
}

// IntersectionResult is produced for each table with at least one feature
// intersecting the AOI. Rows is a bounded sample used for display only.
type IntersectionResult struct {
	Table   string   `json:"table"`
	Count   int64    `json:"count"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// TableFailure records a table whose scan raised an error.
type TableFailure struct {
	Table  string `json:"table"`
	Reason string `json:"reason"`
}

// ScanReport aggregates one scan over a schema.
type ScanReport struct {
	Schema   string               `json:"schema"`
	Results  []IntersectionResult `json:"results"`
	Failures []TableFailure       `json:"failures"`
	Scanned  int                  `json:"scanned"`
}

// FailedTables returns the failed table names in scan order.
func (r *ScanReport) FailedTables() []string {
	names := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		names = append(names, f.Table)
	}
	return names
}

// LayerSelection maps a result table to whether it is exported.
type LayerSelection map[string]bool

// NewLayerSelection includes every table present in the results.
func NewLayerSelection(results []IntersectionResult) LayerSelection {
	sel := make(LayerSelection, len(results))
	for _, r := range results {
		sel[r.Table] = true
	}
	return sel
}

// Toggle sets the flag for a known table and reports whether it was known.
func (s LayerSelection) Toggle(table string, included bool) bool {
	if _, ok := s[table]; !ok {
		return false
	}
	s[table] = included
	return true
}

// Included returns the included tables sorted by name.
func (s LayerSelection) Included() []string {
	var tables []string
	for t, ok := range s {
		if ok {
			tables = append(tables, t)
		}
	}
	sort.Strings(tables)
	return tables
}
