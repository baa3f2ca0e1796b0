package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface for block parameter values.
// Only VString, VInt, VFloat, VBool, VArray, and VObject implement it.
// Null is forbidden: an absent parameter is simply not present in the bag.
type Value interface {
	paramValue() // sealed
}

// VString is a string parameter value.
type VString string

func (VString) paramValue() {}

// VInt is an integer parameter value. Always int64.
type VInt int64

func (VInt) paramValue() {}

// VFloat is a floating-point parameter value.
//
// Unlike event-log systems, a dataflow frontend cannot avoid floats: Const
// blocks carry them. Canonical serialization formats them deterministically
// (see canonical.go); NaN and infinities are rejected at that boundary.
type VFloat float64

func (VFloat) paramValue() {}

// VBool is a boolean parameter value.
type VBool bool

func (VBool) paramValue() {}

// VArray is an ordered list of parameter values.
type VArray []Value

func (VArray) paramValue() {}

// VObject is a map of string keys to parameter values.
// Use SortedKeys for deterministic iteration.
type VObject map[string]Value

func (VObject) paramValue() {}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which produces a DIFFERENT order
// for strings containing characters above U+FFFF.
func (obj VObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units as required by
// RFC 8785 canonical JSON. utf16.Encode handles surrogate pairs correctly.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// FromGo converts a plain Go value (as produced by yaml or cue decoding)
// into a Value. Null is rejected; numeric types normalize to VInt or VFloat.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in parameter values")
	case Value:
		return val, nil
	case string:
		return VString(val), nil
	case int:
		return VInt(val), nil
	case int64:
		return VInt(val), nil
	case float64:
		return VFloat(val), nil
	case float32:
		return VFloat(val), nil
	case bool:
		return VBool(val), nil
	case []any:
		arr := make(VArray, len(val))
		for i, elem := range val {
			pv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = pv
		}
		return arr, nil
	case map[string]any:
		obj := make(VObject, len(val))
		for k, elem := range val {
			pv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = pv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type: %T", v)
	}
}

// ObjectFromGo converts a decoded map into a VObject parameter bag.
func ObjectFromGo(m map[string]any) (VObject, error) {
	obj := make(VObject, len(m))
	for k, v := range m {
		pv, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		obj[k] = pv
	}
	return obj, nil
}

// ToGo converts a Value back into plain Go data for standard JSON output.
func ToGo(v Value) any {
	switch val := v.(type) {
	case VString:
		return string(val)
	case VInt:
		return int64(val)
	case VFloat:
		return float64(val)
	case VBool:
		return bool(val)
	case VArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case VObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler for VObject so parameter bags
// serialize as plain JSON objects in non-canonical output paths.
func (obj VObject) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToGo(obj))
}

// UnmarshalJSON implements json.Unmarshaler for VObject.
func (obj *VObject) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := ObjectFromGo(raw)
	if err != nil {
		return err
	}
	*obj = decoded
	return nil
}
