package result

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqlbridge/sqlbridge/command"
)

// StripPrefix removes a single backend parameter prefix (@, :, ?) from a
// name. Returned output-parameter keys always use the bare name.
func StripPrefix(name string) string {
	if len(name) > 0 && (name[0] == '@' || name[0] == ':' || name[0] == '?') {
		return name[1:]
	}
	return name
}

// NormalizeOutput converts a backend-native output value into the
// cross-backend representation for the declared data type:
//
//   - backend NULL sentinels (nil, invalid sql.Null*) become nil
//   - 16-byte binaries declared as guid become canonical uuid strings
//   - numerics declared as bool become bool (Oracle NUMBER(1) convention)
//   - decimals become their string form, preserving precision
//   - timestamps declared with a zone become offset-carrying UTC values
//
// Values that already match the declared type pass through unchanged.
func NormalizeOutput(dt command.DataType, v any) any {
	v = unwrapNullable(v)
	if v == nil {
		return nil
	}

	switch dt {
	case command.TypeGUID:
		return normalizeGUID(v)
	case command.TypeBool:
		return normalizeBool(v)
	case command.TypeDecimal:
		return normalizeDecimal(v)
	case command.TypeTimestampTZ:
		if t, ok := v.(time.Time); ok {
			return t.UTC()
		}
	case command.TypeInt16, command.TypeInt32, command.TypeInt64:
		return normalizeInt(v)
	case command.TypeString, command.TypeFixedString:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	return Detach(v)
}

// unwrapNullable collapses the sql.Null* holder family and pointer
// holders into either nil or the contained value.
func unwrapNullable(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case sql.NullString:
		if !val.Valid {
			return nil
		}
		return val.String
	case sql.NullInt64:
		if !val.Valid {
			return nil
		}
		return val.Int64
	case sql.NullFloat64:
		if !val.Valid {
			return nil
		}
		return val.Float64
	case sql.NullBool:
		if !val.Valid {
			return nil
		}
		return val.Bool
	case sql.NullTime:
		if !val.Valid {
			return nil
		}
		return val.Time
	case *string:
		if val == nil {
			return nil
		}
		return *val
	case *int64:
		if val == nil {
			return nil
		}
		return *val
	case *float64:
		if val == nil {
			return nil
		}
		return *val
	case *bool:
		if val == nil {
			return nil
		}
		return *val
	case *time.Time:
		if val == nil {
			return nil
		}
		return *val
	case *[]byte:
		if val == nil {
			return nil
		}
		return Detach(*val)
	case *any:
		if val == nil {
			return nil
		}
		return unwrapNullable(*val)
	default:
		// Driver-native holders (e.g. return-status or guid types) are
		// plain pointers to named types; dereference them generically.
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil
			}
			return unwrapNullable(rv.Elem().Interface())
		}
		return v
	}
}

func normalizeGUID(v any) any {
	switch val := v.(type) {
	case []byte:
		if len(val) == 16 {
			if id, err := uuid.FromBytes(val); err == nil {
				return id.String()
			}
		}
		return Detach(val)
	case [16]byte:
		return uuid.UUID(val).String()
	case string:
		if id, err := uuid.Parse(val); err == nil {
			return id.String()
		}
		return val
	default:
		// Driver guid types (16-byte arrays, Stringer wrappers).
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Array && rv.Len() == 16 && rv.Type().Elem().Kind() == reflect.Uint8 {
			var raw [16]byte
			reflect.ValueOf(&raw).Elem().Set(rv.Convert(reflect.TypeOf(raw)))
			return uuid.UUID(raw).String()
		}
		if s, ok := v.(fmt.Stringer); ok {
			if id, err := uuid.Parse(s.String()); err == nil {
				return id.String()
			}
		}
		return v
	}
}

func normalizeBool(v any) any {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	case string:
		return boolFromString(val)
	case []byte:
		return boolFromString(string(val))
	default:
		return v
	}
}

func boolFromString(s string) any {
	switch strings.TrimSpace(s) {
	case "0", "false", "FALSE", "N", "n":
		return false
	case "1", "true", "TRUE", "Y", "y":
		return true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0
	}
	return s
}

func normalizeDecimal(v any) any {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return v
	}
}

func normalizeInt(v any) any {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case float64:
		// Oracle NUMBER scans as float64 for integral declarations.
		return int64(val)
	case string:
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
		return val
	case []byte:
		if n, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return n
		}
		return Detach(val)
	default:
		// Named integer types (driver return-status wrappers).
		rv := reflect.ValueOf(v)
		if rv.CanInt() {
			return rv.Int()
		}
		return v
	}
}
