package geopackage

import "github.com/uptrace/bun"

// SpatialRefSys is a row of gpkg_spatial_ref_sys.
type SpatialRefSys struct {
	bun.BaseModel `bun:"table:gpkg_spatial_ref_sys"`

	SRSName                string `bun:"srs_name"`
	SRSID                  int    `bun:"srs_id,pk"`
	Organization           string `bun:"organization"`
	OrganizationCoordsysID int    `bun:"organization_coordsys_id"`
	Definition             string `bun:"definition"`
	Description            string `bun:"description"`
}

const (
	wktWGS84 = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],` +
		`AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],` +
		`UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`
	wktSIRGAS2000 = `GEOGCS["SIRGAS 2000",DATUM["Sistema_de_Referencia_Geocentrico_para_las_AmericaS_2000",` +
		`SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],TOWGS84[0,0,0,0,0,0,0],` +
		`AUTHORITY["EPSG","6674"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],` +
		`UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4674"]]`
)

// requiredSRS are the rows every GeoPackage must carry.
var requiredSRS = []SpatialRefSys{
	{SRSName: "Undefined cartesian SRS", SRSID: -1, Organization: "NONE", OrganizationCoordsysID: -1,
		Definition: "undefined", Description: "undefined cartesian coordinate reference system"},
	{SRSName: "Undefined geographic SRS", SRSID: 0, Organization: "NONE", OrganizationCoordsysID: 0,
		Definition: "undefined", Description: "undefined geographic coordinate reference system"},
	{SRSName: "WGS 84 geodetic", SRSID: 4326, Organization: "EPSG", OrganizationCoordsysID: 4326,
		Definition: wktWGS84, Description: "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid"},
}

// knownSRS returns the row for srid, with an undefined definition for codes
// this package has no WKT for.
func knownSRS(srid int) SpatialRefSys {
	switch srid {
	case 4674:
		return SpatialRefSys{SRSName: "SIRGAS 2000", SRSID: 4674, Organization: "EPSG",
			OrganizationCoordsysID: 4674, Definition: wktSIRGAS2000, Description: "SIRGAS 2000 geographic"}
	case 4326, 0, -1:
		for _, s := range requiredSRS {
			if s.SRSID == srid {
				return s
			}
		}
	}
	return SpatialRefSys{SRSName: "EPSG", SRSID: srid, Organization: "EPSG",
		OrganizationCoordsysID: srid, Definition: "undefined"}
}
