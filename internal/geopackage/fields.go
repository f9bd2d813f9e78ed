package geopackage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// GeoPackage attribute column types.
const (
	TypeInteger  = "INTEGER"
	TypeReal     = "REAL"
	TypeText     = "TEXT"
	TypeBlob     = "BLOB"
	TypeBoolean  = "BOOLEAN"
	TypeDate     = "DATE"
	TypeDateTime = "DATETIME"
)

// Field is an attribute column of a feature table.
type Field struct {
	Name string
	Type string
}

// FieldType maps a PostgreSQL type name, as format_type or a driver reports
// it, to a GeoPackage column type. With no name the Go type of a sample value
// decides.
func FieldType(dbType string, sample any) string {
	switch baseType(dbType) {
	case "INT2", "INT4", "INT8", "SMALLINT", "INTEGER", "BIGINT", "OID", "SERIAL", "BIGSERIAL":
		return TypeInteger
	case "FLOAT4", "FLOAT8", "REAL", "DOUBLE PRECISION", "NUMERIC", "DECIMAL":
		return TypeReal
	case "BOOL", "BOOLEAN":
		return TypeBoolean
	case "DATE":
		return TypeDate
	case "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP WITH TIME ZONE":
		return TypeDateTime
	case "BYTEA":
		return TypeBlob
	case "":
	default:
		return TypeText
	}

	switch sample.(type) {
	case int64, int32, int:
		return TypeInteger
	case float64, float32:
		return TypeReal
	case bool:
		return TypeBoolean
	case time.Time:
		return TypeDateTime
	case []byte:
		return TypeBlob
	default:
		return TypeText
	}
}

// baseType upper-cases a type name and drops its modifier, so
// "numeric(10,2)" reads as NUMERIC and "timestamp(3) with time zone" as
// TIMESTAMP WITH TIME ZONE. Array types keep their brackets and map to text.
func baseType(dbType string) string {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	if open := strings.Index(t, "("); open >= 0 {
		if end := strings.Index(t[open:], ")"); end >= 0 {
			t = strings.TrimSpace(t[:open]) + t[open+end+1:]
		}
	}
	return t
}

// Coerce converts a driver value into something SQLite stores under the
// given column type.
func Coerce(fieldType string, v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok && fieldType != TypeBlob && utf8.Valid(b) {
		v = string(b)
	}
	switch fieldType {
	case TypeDateTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format("2006-01-02T15:04:05.000Z")
		}
	case TypeDate:
		if t, ok := v.(time.Time); ok {
			return t.Format("2006-01-02")
		}
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			if b {
				return int64(1)
			}
			return int64(0)
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return Coerce(fieldType, parsed)
			}
		}
	case TypeReal:
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
	case TypeInteger:
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
	case TypeBlob:
		if s, ok := v.(string); ok {
			return []byte(s)
		}
		return v
	}

	switch t := v.(type) {
	case string, int64, float64, []byte:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case bool:
		return Coerce(TypeBoolean, t)
	case time.Time:
		return Coerce(TypeDateTime, t)
	default:
		return fmt.Sprint(t)
	}
}
