// Package plist implements Apple's binary property list format
// (bplist00) over a tagged value tree, per spec.md 4.C. It is the body
// encoding for AirPlay-2 SET_PARAMETER/SETUP/SETRATEANCHORTIME messages.
package plist

import "time"

// Kind tags the concrete type held by a Value.
type Kind int

// Value kinds.
const (
	KindBool Kind = iota
	KindInt
	KindReal
	KindDate
	KindData
	KindString
	KindArray
	KindDict
)

// Value is a node in the plist tree. Exactly one of the typed fields is
// meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Real   float64
	IsReal64 bool
	Date   time.Time
	Data   []byte
	Str    string
	Array  []*Value
	Dict   *Dict

	// refs/keyRefs are populated transiently by the encoder while
	// flattening the tree into an object table; unused by callers.
	refs    []int
	keyRefs []int
}

// Dict is an insertion-ordered string-keyed dictionary, matching the
// teacher's description.Session ordering guarantee for SDP attributes
// and HAP's expectation that dictionary key order round-trips.
type Dict struct {
	keys   []string
	values map[string]*Value
}

// NewDict allocates an empty ordered dictionary.
func NewDict() *Dict {
	return &Dict{values: make(map[string]*Value)}
}

// Set inserts or overwrites key, preserving first-insertion order.
func (d *Dict) Set(key string, v *Value) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Get returns the value for key, and whether it was present.
func (d *Dict) Get(key string) (*Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns keys in insertion order.
func (d *Dict) Keys() []string { return d.keys }

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

// Bool wraps a boolean leaf value.
func Bool(b bool) *Value { return &Value{Kind: KindBool, Bool: b} }

// Int wraps a signed integer leaf value.
func Int(i int64) *Value { return &Value{Kind: KindInt, Int: i} }

// Real wraps a 64-bit floating point leaf value.
func Real(f float64) *Value { return &Value{Kind: KindReal, Real: f, IsReal64: true} }

// DateVal wraps a date leaf value.
func DateVal(t time.Time) *Value { return &Value{Kind: KindDate, Date: t} }

// DataVal wraps a raw byte-string leaf value.
func DataVal(b []byte) *Value { return &Value{Kind: KindData, Data: b} }

// String wraps a UTF-8 string leaf value.
func String(s string) *Value { return &Value{Kind: KindString, Str: s} }

// ArrayVal wraps an ordered array of values.
func ArrayVal(items ...*Value) *Value { return &Value{Kind: KindArray, Array: items} }

// DictVal wraps a dictionary.
func DictVal(d *Dict) *Value { return &Value{Kind: KindDict, Dict: d} }
