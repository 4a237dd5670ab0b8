package query

import (
	"fmt"
	"time"

	"qindex/internal/metadata"
)

// ParamType is the declared SQL type of a bound parameter.
type ParamType string

const (
	Varchar   ParamType = "VARCHAR"
	Integer   ParamType = "INTEGER"
	BigInt    ParamType = "BIGINT"
	Double    ParamType = "DOUBLE"
	Boolean   ParamType = "BOOLEAN"
	Timestamp ParamType = "TIMESTAMP"
)

// param is a coerced literal and the type it binds as.
type param struct {
	Value any
	Type  ParamType
}

// Value is a composite literal for a value-typed member, keyed by member name.
// Members left out are not constrained.
type Value map[string]any

// EnumConstant names an enum constant. A plain string works too; the type
// only adds a check that the constant belongs to the member's enum.
type EnumConstant struct {
	Type string
	Name string
}

func (e EnumConstant) String() string {
	if e.Type == "" {
		return e.Name
	}
	return e.Type + "." + e.Name
}

// Date returns midnight UTC of the given day, for datetime literals.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func paramType(kind metadata.ScalarKind) ParamType {
	switch kind {
	case metadata.ScalarInteger:
		return Integer
	case metadata.ScalarLong:
		return BigInt
	case metadata.ScalarDouble:
		return Double
	case metadata.ScalarBoolean:
		return Boolean
	case metadata.ScalarDateTime:
		return Timestamp
	default:
		return Varchar
	}
}

// literal coerces v for the column described by d. A nil descriptor stands
// for the identity column. Nothing is bound until the caller passes the
// result to builder.bind.
func (b *builder) literal(p Path, d *metadata.Descriptor, v any) (param, error) {
	if d == nil || d.Kind != metadata.Property {
		s, ok := v.(string)
		if !ok {
			return param{}, invalidLiteral(p, "identities are strings, got %T", v)
		}
		return param{Value: s, Type: Varchar}, nil
	}

	switch {
	case d.IsEnum():
		var name string
		switch e := v.(type) {
		case string:
			name = e
		case EnumConstant:
			if e.Type != "" && e.Type != d.EnumType {
				return param{}, invalidLiteral(p, "%s is not a constant of %s", e, d.EnumType)
			}
			name = e.Name
		default:
			return param{}, invalidLiteral(p, "%s constants are strings, got %T", d.EnumType, v)
		}
		id, ok := b.reg.EnumID(d.EnumType, name)
		if !ok {
			return param{}, invalidLiteral(p, "%q is not a constant of %s", name, d.EnumType)
		}
		return param{Value: int64(id), Type: Integer}, nil

	case d.IsValue():
		return param{}, invalidLiteral(p, "%s values compare with a query.Value literal", d.ValueType)
	}

	coerced, err := metadata.CoerceScalar(d.Scalar, widen(v))
	if err != nil {
		return param{}, &PathError{Path: p.String(), Err: ErrInvalidLiteral, Reason: err.Error()}
	}
	return param{Value: coerced, Type: paramType(d.Scalar)}, nil
}

// widen maps the remaining Go integer and float kinds onto the ones
// metadata.CoerceScalar understands.
func widen(v any) any {
	switch n := v.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint64:
		if n > 1<<63-1 {
			return v
		}
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// literalKey identifies a coerced literal for duplicate detection.
func literalKey(lit param) string {
	if t, ok := lit.Value.(time.Time); ok {
		return "time|" + t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%T|%v", lit.Value, lit.Value)
}
