package models

// DiagnosticNode is one node of the table -> column -> sample value tree.
type DiagnosticNode struct {
	Name     string           `json:"name"`
	Checked  *bool            `json:"checked,omitempty"`
	Children []DiagnosticNode `json:"children,omitempty"`
}

// CountRow is one line of the flat diagnostic report.
type CountRow struct {
	Table string `json:"table"`
	Count int64  `json:"count"`
}
