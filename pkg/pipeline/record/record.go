// Package record defines the opaque tagged record value that flows through
// a pipeline. The pipeline runtime never inspects a Value's payload except
// through the callbacks a caller supplies (map, filter, length, yield
// functions); this package exists only so the runtime has something
// concrete to hold onto and so the checkpoint tape has something concrete
// to encode.
package record

import "fmt"

// Kind identifies which alternative of a Value is populated.
type Kind int

const (
	// KindInvalid is the zero Kind; a zero Value is not a valid record.
	KindInvalid Kind = iota
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return "invalid"
	}
}

// Value is an immutable tagged union over the record shapes a pipeline can
// carry: integers, floats, strings, byte strings, ordered lists of records
// and string-keyed maps of records.
type Value struct {
	kind  Kind
	i64   int64
	f64   float64
	str   string
	bytes []byte
	list  []Value
	dict  map[string]Value
}

// Int64 wraps an integer record.
func Int64(v int64) Value { return Value{kind: KindInt64, i64: v} }

// Float64 wraps a floating-point record.
func Float64(v float64) Value { return Value{kind: KindFloat64, f64: v} }

// String wraps a string record.
func String(v string) Value { return Value{kind: KindString, str: v} }

// Bytes wraps a byte-string record. The slice is not copied.
func Bytes(v []byte) Value { return Value{kind: KindBytes, bytes: v} }

// List wraps an ordered list of records.
func List(v []Value) Value { return Value{kind: KindList, list: v} }

// Dict wraps a string-keyed map of records.
func Dict(v map[string]Value) Value { return Value{kind: KindDict, dict: v} }

// Kind reports which alternative is populated.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds any alternative.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsInt64 returns the wrapped integer, if any.
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindInt64 {
		return 0, false
	}
	return v.i64, true
}

// AsFloat64 returns the wrapped float, if any.
func (v Value) AsFloat64() (float64, bool) {
	if v.kind != KindFloat64 {
		return 0, false
	}
	return v.f64, true
}

// AsString returns the wrapped string, if any.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBytes returns the wrapped byte string, if any.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

// AsList returns the wrapped list, if any.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// AsDict returns the wrapped map, if any.
func (v Value) AsDict() (map[string]Value, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// Len returns the length of a Value's payload for the container kinds
// (KindList, KindDict, KindBytes, KindString); it panics for scalar kinds,
// mirroring the fact that data_length_fn is only ever handed to bucketing
// stages over records the caller knows the shape of.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindDict:
		return len(v.dict)
	case KindBytes:
		return len(v.bytes)
	case KindString:
		return len(v.str)
	default:
		panic(fmt.Sprintf("record: Len called on scalar Kind %s", v.kind))
	}
}

// Equal reports whether v and other represent the same record. Float NaN
// values are never equal to themselves, matching IEEE 754 semantics.
func Equal(v, other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInt64:
		return v.i64 == other.i64
	case KindFloat64:
		return v.f64 == other.f64
	case KindString:
		return v.str == other.str
	case KindBytes:
		return string(v.bytes) == string(other.bytes)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !Equal(v.list[i], other.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(v.dict) != len(other.dict) {
			return false
		}
		for k, val := range v.dict {
			ov, ok := other.dict[k]
			if !ok || !Equal(val, ov) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt64:
		return fmt.Sprintf("Int64(%d)", v.i64)
	case KindFloat64:
		return fmt.Sprintf("Float64(%v)", v.f64)
	case KindString:
		return fmt.Sprintf("String(%q)", v.str)
	case KindBytes:
		return fmt.Sprintf("Bytes(%d bytes)", len(v.bytes))
	case KindList:
		return fmt.Sprintf("List(%d items)", len(v.list))
	case KindDict:
		return fmt.Sprintf("Dict(%d keys)", len(v.dict))
	default:
		return "Invalid"
	}
}
