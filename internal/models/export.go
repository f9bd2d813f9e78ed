package models

// LayerOutcome classifies what happened to one exported layer.
type LayerOutcome string

const (
	LayerWritten      LayerOutcome = "written"
	LayerSkippedEmpty LayerOutcome = "skipped-empty-result"
	LayerSkippedAll   LayerOutcome = "skipped-all-invalid"
	LayerFailed       LayerOutcome = "failed-with-error"
)

// AOILayerName is the reference layer written into every container.
const AOILayerName = "AOI"

// LayerReport is the outcome of one table's export.
type LayerReport struct {
	Layer       string       `json:"layer"` // name in the container
	Table       string       `json:"table"` // source table
	Outcome     LayerOutcome `json:"outcome"`
	Fetched     int          `json:"fetched"`
	Features    int          `json:"features"`
	Dropped     int          `json:"dropped"`
	ConvertedZM bool         `json:"converted_zm"`
	Reason      string       `json:"reason,omitempty"`
}

// ExportReport is the log of one export run.
type ExportReport struct {
	Path       string        `json:"path"`
	AOIWritten bool          `json:"aoi_written"`
	Layers     []LayerReport `json:"layers"`
}

// Success is true once the container exists with its AOI layer; per-layer
// outcomes are informational.
func (r *ExportReport) Success() bool {
	return r != nil && r.AOIWritten
}

// Count returns how many layers ended with the given outcome.
func (r *ExportReport) Count(outcome LayerOutcome) int {
	n := 0
	for _, l := range r.Layers {
		if l.Outcome == outcome {
			n++
		}
	}
	return n
}
