package models

// AOIGeometry is the merged area of interest, already in the target SRID.
type AOIGeometry struct {
	SRID         int    `json:"srid"`
	WKT          string `json:"wkt"`
	Source       string `json:"source"`
	SourceSRID   int    `json:"source_srid"`
	FeatureCount int    `json:"feature_count"`
}
