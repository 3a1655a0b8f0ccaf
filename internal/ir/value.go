package ir

import (
	"fmt"
	"time"
)

// Kind is the native representation of an attribute value.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindBool
	KindRef
	KindTime
)

var kindNames = map[Kind]string{
	KindInvalid: "invalid",
	KindString:  "string",
	KindInt:     "int",
	KindBool:    "bool",
	KindRef:     "resource",
	KindTime:    "time",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a native-type reference to a Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if k != KindInvalid && n == name {
			return k, true
		}
	}
	return KindInvalid, false
}

// Assignable reports whether a value of kind from may be compared with, or
// stored into, a slot of kind to.
func Assignable(to, from Kind) bool {
	return to != KindInvalid && to == from
}

// Value is a sealed interface representing native attribute values.
// Only Null, String, Int, Bool, Ref and Time implement it.
// NO float values - numbers are always int64.
type Value interface {
	Kind() Kind
	irValue() // Sealed - only these types implement it
}

// Null represents an absent value.
type Null struct{}

func (Null) irValue()   {}
func (Null) Kind() Kind { return KindInvalid }

// String is a string value.
type String string

func (String) irValue()   {}
func (String) Kind() Kind { return KindString }

// Int is an integer value. Always int64.
type Int int64

func (Int) irValue()   {}
func (Int) Kind() Kind { return KindInt }

// Bool is a boolean value.
type Bool bool

func (Bool) irValue()   {}
func (Bool) Kind() Kind { return KindBool }

// Ref is a reference to another resource, held as its id.
type Ref ResourceID

func (Ref) irValue()   {}
func (Ref) Kind() Kind { return KindRef }

// Time is a point in time, normalized to UTC.
type Time struct {
	time.Time
}

func (Time) irValue()   {}
func (Time) Kind() Kind { return KindTime }

// NewTime creates a Time value normalized to UTC with second precision.
func NewTime(t time.Time) Time {
	return Time{t.UTC().Truncate(time.Second)}
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// GoValue converts a Value to a plain Go value suitable for JSON encoding
// and database/sql parameters.
func GoValue(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case Ref:
		return int64(val)
	case Time:
		return val.Format(time.RFC3339)
	default:
		return nil
	}
}

// FromGo converts a decoded Go value (from YAML, JSON or CUE) to a Value of
// the requested kind.
func FromGo(kind Kind, v any) (Value, error) {
	if v == nil {
		return Null{}, nil
	}
	switch kind {
	case KindString:
		if s, ok := v.(string); ok {
			return String(s), nil
		}
	case KindInt:
		switch n := v.(type) {
		case int:
			return Int(n), nil
		case int64:
			return Int(n), nil
		case uint64:
			return Int(int64(n)), nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return Bool(b), nil
		}
	case KindRef:
		switch n := v.(type) {
		case int:
			return Ref(n), nil
		case int64:
			return Ref(n), nil
		case ResourceID:
			return Ref(n), nil
		}
	case KindTime:
		switch t := v.(type) {
		case time.Time:
			return NewTime(t), nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return nil, fmt.Errorf("invalid time %q: %w", t, err)
			}
			return NewTime(parsed), nil
		}
	}
	return nil, fmt.Errorf("cannot use %T value %v as %s", v, v, kind)
}
