package table

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the value kind carried by a topic.
type Kind uint8

// Supported value kinds.
const (
	KindUnknown Kind = iota
	KindBoolean
	KindInteger
	KindDouble
	KindFloat
	KindString
	KindStruct
)

var kindNames = map[Kind]string{
	KindBoolean: "boolean",
	KindInteger: "int",
	KindDouble:  "double",
	KindFloat:   "float",
	KindString:  "string",
	KindStruct:  "struct",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Type is the full type a topic is bound to. Two types are compatible
// only when they compare equal, so record types must also agree on their
// name and field layout.
type Type struct {
	Kind   Kind
	Array  bool
	Name   string // record type name, KindStruct only
	Layout string // record field layout signature, KindStruct only
}

// Scalar and array types for the built-in kinds.
var (
	Boolean      = Type{Kind: KindBoolean}
	Integer      = Type{Kind: KindInteger}
	Double       = Type{Kind: KindDouble}
	Float        = Type{Kind: KindFloat}
	String       = Type{Kind: KindString}
	BooleanArray = Type{Kind: KindBoolean, Array: true}
	IntegerArray = Type{Kind: KindInteger, Array: true}
	DoubleArray  = Type{Kind: KindDouble, Array: true}
	FloatArray   = Type{Kind: KindFloat, Array: true}
	StringArray  = Type{Kind: KindString, Array: true}
)

// StructType returns the type of a record (or record array) with the
// given name and layout signature.
func StructType(name, layout string, array bool) Type {
	return Type{Kind: KindStruct, Array: array, Name: name, Layout: layout}
}

// String renders the type the way NetworkTables names it, e.g. "double[]"
// or "struct:Pose2d".
func (t Type) String() string {
	var b strings.Builder
	b.WriteString(t.Kind.String())
	if t.Kind == KindStruct {
		b.WriteByte(':')
		b.WriteString(t.Name)
	}
	if t.Array {
		b.WriteString("[]")
	}
	return b.String()
}

// ParseType is the inverse of Type.String. The layout of a record type is
// not part of its name and must be supplied separately.
func ParseType(s, layout string) (Type, error) {
	var t Type
	if strings.HasSuffix(s, "[]") {
		t.Array = true
		s = strings.TrimSuffix(s, "[]")
	}
	if name, ok := strings.CutPrefix(s, "struct:"); ok {
		if name == "" {
			return Type{}, fmt.Errorf("parse type %q: empty struct name", s)
		}
		t.Kind = KindStruct
		t.Name = name
		t.Layout = layout
		return t, nil
	}
	for k, name := range kindNames {
		if name == s && k != KindStruct {
			t.Kind = k
			return t, nil
		}
	}
	return Type{}, fmt.Errorf("parse type %q: unknown kind", s)
}

// Zero returns the zero value a subscriber of this type reports when
// nothing has been published.
func (t Type) Zero() any {
	if t.Array {
		switch t.Kind {
		case KindBoolean:
			return []bool{}
		case KindInteger:
			return []int64{}
		case KindDouble:
			return []float64{}
		case KindFloat:
			return []float32{}
		case KindString:
			return []string{}
		case KindStruct:
			return []byte{}
		}
		return nil
	}
	switch t.Kind {
	case KindBoolean:
		return false
	case KindInteger:
		return int64(0)
	case KindDouble:
		return float64(0)
	case KindFloat:
		return float32(0)
	case KindString:
		return ""
	case KindStruct:
		return []byte{}
	}
	return nil
}

// Check reports whether v is a valid value for the type.
func (t Type) Check(v any) error {
	ok := false
	switch t.Kind {
	case KindBoolean:
		if t.Array {
			_, ok = v.([]bool)
		} else {
			_, ok = v.(bool)
		}
	case KindInteger:
		if t.Array {
			_, ok = v.([]int64)
		} else {
			_, ok = v.(int64)
		}
	case KindDouble:
		if t.Array {
			_, ok = v.([]float64)
		} else {
			_, ok = v.(float64)
		}
	case KindFloat:
		if t.Array {
			_, ok = v.([]float32)
		} else {
			_, ok = v.(float32)
		}
	case KindString:
		if t.Array {
			_, ok = v.([]string)
		} else {
			_, ok = v.(string)
		}
	case KindStruct:
		_, ok = v.([]byte)
	}
	if !ok {
		return fmt.Errorf("%w: %T is not a %s value", ErrInvalidValue, v, t)
	}
	return nil
}

// Copy returns v with slice values duplicated so callers never share
// backing arrays with the table.
func Copy(v any) any {
	switch x := v.(type) {
	case []bool:
		return append([]bool(nil), x...)
	case []int64:
		return append([]int64(nil), x...)
	case []float64:
		return append([]float64(nil), x...)
	case []float32:
		return append([]float32(nil), x...)
	case []string:
		return append([]string(nil), x...)
	case []byte:
		return append([]byte(nil), x...)
	default:
		return v
	}
}

// Change describes one value published to a topic.
type Change struct {
	Path    string
	Type    Type
	Value   any
	Instant int64
}

// Errors reported by table implementations.
var (
	ErrTypeMismatch = errors.New("table: topic type mismatch")
	ErrInvalidValue = errors.New("table: invalid value")
	ErrRemoved      = errors.New("table: topic removed")
)
