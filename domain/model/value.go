package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Value is a sealed interface over the data a structured file can hold.
// Only the types in this file implement it.
type Value interface {
	value()
}

// Null is an explicit empty value (yaml/json null)
type Null struct{}

func (Null) value() {}

func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

type String string

func (String) value() {}

type Int int64

func (Int) value() {}

type Real float64

func (Real) value() {}

type Bool bool

func (Bool) value() {}

// Date keeps millisecond-or-better timestamps from plist <date> or yaml !!timestamp
type Date time.Time

func (Date) value() {}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d))
}

func (d Date) String() string {
	return time.Time(d).UTC().Format(time.RFC3339Nano)
}

// Data is an opaque byte blob (plist <data>, yaml !!binary)
type Data []byte

func (Data) value() {}

type Array []Value

func (Array) value() {}

// Dict maps string keys to values. Use SortedKeys for deterministic iteration.
type Dict map[string]Value

func (Dict) value() {}

// SortedKeys returns the dict keys in byte order
func (d Dict) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EmptyTree is the data of a file that does not exist (yet or anymore)
func EmptyTree() Dict {
	return Dict{}
}

// TypeName returns the short type label shown in version views
func TypeName(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Real:
		return "float"
	case Bool:
		return "bool"
	case Date:
		return "date"
	case Data:
		return "data"
	case Array:
		return "array"
	case Dict:
		return "dict"
	default:
		return "unknown"
	}
}

// IsContainer reports whether v is an Array or a Dict
func IsContainer(v Value) bool {
	switch v.(type) {
	case Array, Dict:
		return true
	}
	return false
}

// Equal is a deep, type-sensitive comparison: Int(1) and Real(1) differ.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Null:
		switch b.(type) {
		case nil, Null:
			return true
		}
		return false
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Real:
		bv, ok := b.(Real)
		return ok && (av == bv || (math.IsNaN(float64(av)) && math.IsNaN(float64(bv))))
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Date:
		bv, ok := b.(Date)
		return ok && time.Time(av).Equal(time.Time(bv))
	case Data:
		bv, ok := b.(Data)
		return ok && bytes.Equal(av, bv)
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Dict:
		bv, ok := b.(Dict)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, exists := bv[k]
			if !exists || !Equal(x, y) {
				return false
			}
		}
		return true
	}
	return false
}

// Leaf is one scalar (or empty container) reachable from the root of a tree
type Leaf struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value Value  `json:"value"`
}

// Leaves flattens a tree depth first, in sorted key order
func Leaves(v Value) []Leaf {
	var leaves []Leaf
	WalkLeaves("", v, func(key string, leaf Value) {
		leaves = append(leaves, Leaf{Key: key, Type: TypeName(leaf), Value: leaf})
	})
	return leaves
}

// WalkLeaves calls emit for every leaf under v, prefixing keys with prefix.
// Empty containers below the root count as leaves.
func WalkLeaves(prefix string, v Value, emit func(key string, leaf Value)) {
	switch tv := v.(type) {
	case Dict:
		if len(tv) == 0 && prefix != "" {
			emit(prefix, tv)
			return
		}
		for _, k := range tv.SortedKeys() {
			WalkLeaves(JoinKey(prefix, k), tv[k], emit)
		}
	case Array:
		if len(tv) == 0 {
			emit(prefix, tv)
			return
		}
		for i, item := range tv {
			WalkLeaves(IndexKey(prefix, i), item, emit)
		}
	default:
		emit(prefix, v)
	}
}

// JoinKey appends a dict key to a structural path using dot notation. Keys
// that would read as path syntax (reverse-DNS names, brackets, empty) are
// quoted in brackets instead, so a["com.apple.foo"] never collides with
// a.com.apple.foo.
func JoinKey(prefix, key string) string {
	if needsQuoting(key) {
		return prefix + "[" + strconv.Quote(key) + "]"
	}
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func needsQuoting(key string) bool {
	return key == "" || strings.ContainsAny(key, `.[]"`)
}

// IndexKey appends an array index to a structural path using bracket notation
func IndexKey(prefix string, i int) string {
	return prefix + "[" + strconv.Itoa(i) + "]"
}

// fromUnsigned keeps unsigned integers above the int64 range as reals
// instead of wrapping them to negative values
func fromUnsigned(v uint64) Value {
	if v > math.MaxInt64 {
		return Real(v)
	}
	return Int(v)
}

// FromNative converts decoded Go values (encoding/json, plist, yaml into any)
// into the closed Value variant.
func FromNative(in any) (Value, error) {
	switch v := in.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(v), nil
	case int8:
		return Int(v), nil
	case int16:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint:
		return fromUnsigned(uint64(v)), nil
	case uint8:
		return Int(v), nil
	case uint16:
		return Int(v), nil
	case uint32:
		return Int(v), nil
	case uint64:
		return fromUnsigned(v), nil
	case float32:
		return Real(v), nil
	case float64:
		return Real(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", v.String(), err)
		}
		return Real(f), nil
	case time.Time:
		return Date(v), nil
	case []byte:
		return Data(v), nil
	case []any:
		arr := make(Array, 0, len(v))
		for i, item := range v {
			conv, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr = append(arr, conv)
		}
		return arr, nil
	case map[string]any:
		dict := make(Dict, len(v))
		for k, item := range v {
			conv, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			dict[k] = conv
		}
		return dict, nil
	case map[any]any:
		dict := make(Dict, len(v))
		for k, item := range v {
			conv, err := FromNative(item)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", k, err)
			}
			dict[fmt.Sprint(k)] = conv
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", in)
	}
}
