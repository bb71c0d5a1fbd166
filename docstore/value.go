// Package docstore is a client for a Firestore-style REST document store. Document
// fields travel in a typed-field envelope ({"stringValue": "..."}, {"arrayValue":
// {"values": [...]}}, ...); Value models that envelope as a tagged variant.
package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindDouble
	KindTimestamp
	KindString
	KindBytes
	KindReference
	KindGeoPoint
	KindArray
	KindMap
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindInteger:   "integer",
	KindDouble:    "double",
	KindTimestamp: "timestamp",
	KindString:    "string",
	KindBytes:     "bytes",
	KindReference: "reference",
	KindGeoPoint:  "geoPoint",
	KindArray:     "array",
	KindMap:       "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// LatLng is the payload of a geoPoint value.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Value is a single typed field value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	t    time.Time
	s    string // string and reference payloads
	raw  []byte
	geo  LatLng
	arr  []Value
	m    Fields
}

func Null() Value              { return Value{} }
func Bool(b bool) Value        { return Value{kind: KindBoolean, b: b} }
func Int(i int64) Value        { return Value{kind: KindInteger, i: i} }
func Double(f float64) Value   { return Value{kind: KindDouble, f: f} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value     { return Value{kind: KindBytes, raw: b} }
func Reference(n string) Value { return Value{kind: KindReference, s: n} }
func GeoPoint(p LatLng) Value  { return Value{kind: KindGeoPoint, geo: p} }

// Timestamp stores t in UTC.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t.UTC()} }

// Array builds an array value. A nil argument list still encodes as an empty array.
func Array(values ...Value) Value {
	if values == nil {
		values = []Value{}
	}
	return Value{kind: KindArray, arr: values}
}

// Map builds a map value.
func Map(fields Fields) Value {
	if fields == nil {
		fields = Fields{}
	}
	return Value{kind: KindMap, m: fields}
}

// Strings builds an array of string values.
func Strings(ss []string) Value {
	values := make([]Value, 0, len(ss))
	for _, s := range ss {
		values = append(values, String(s))
	}
	return Array(values...)
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// StringValue returns the string payload, or "" for any other kind.
func (v Value) StringValue() string {
	if v.kind == KindString || v.kind == KindReference {
		return v.s
	}
	return ""
}

func (v Value) BoolValue() bool {
	return v.kind == KindBoolean && v.b
}

func (v Value) IntValue() int64 {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindDouble:
		return int64(v.f)
	}
	return 0
}

func (v Value) DoubleValue() float64 {
	switch v.kind {
	case KindDouble:
		return v.f
	case KindInteger:
		return float64(v.i)
	}
	return 0
}

func (v Value) BytesValue() []byte {
	if v.kind == KindBytes {
		return v.raw
	}
	return nil
}

func (v Value) GeoPointValue() LatLng {
	return v.geo
}

// TimeValue returns the timestamp payload and whether v is a timestamp.
func (v Value) TimeValue() (time.Time, bool) {
	if v.kind != KindTimestamp {
		return time.Time{}, false
	}
	return v.t, true
}

// ArrayValue returns the elements of an array value, or nil.
func (v Value) ArrayValue() []Value {
	if v.kind == KindArray {
		return v.arr
	}
	return nil
}

// MapValue returns the fields of a map value, or nil.
func (v Value) MapValue() Fields {
	if v.kind == KindMap {
		return v.m
	}
	return nil
}

// StringsValue returns the string elements of an array value. Elements of any
// other kind are skipped.
func (v Value) StringsValue() []string {
	out := []string{}
	for _, e := range v.ArrayValue() {
		if e.kind == KindString {
			out = append(out, e.s)
		}
	}
	return out
}

// Equal reports deep equality, which is what the store uses for array-transform
// membership.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.b == o.b
	case KindInteger:
		return v.i == o.i
	case KindDouble:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindTimestamp:
		return v.t.Equal(o.t)
	case KindString, KindReference:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	case KindGeoPoint:
		return v.geo == o.geo
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, fv := range v.m {
			ov, ok := o.m[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

type arrayPayload struct {
	Values []Value `json:"values"`
}

type mapPayload struct {
	Fields Fields `json:"fields"`
}

// MarshalJSON encodes the value in the typed-field envelope.
func (v Value) MarshalJSON() ([]byte, error) {
	var key string
	var payload any
	switch v.kind {
	case KindNull:
		return []byte(`{"nullValue":null}`), nil
	case KindBoolean:
		key, payload = "booleanValue", v.b
	case KindInteger:
		// int64 travels as a decimal string
		key, payload = "integerValue", strconv.FormatInt(v.i, 10)
	case KindDouble:
		key = "doubleValue"
		switch {
		case math.IsNaN(v.f):
			payload = "NaN"
		case math.IsInf(v.f, 1):
			payload = "Infinity"
		case math.IsInf(v.f, -1):
			payload = "-Infinity"
		default:
			payload = v.f
		}
	case KindTimestamp:
		key, payload = "timestampValue", v.t.UTC().Format(time.RFC3339Nano)
	case KindString:
		key, payload = "stringValue", v.s
	case KindBytes:
		key, payload = "bytesValue", v.raw
	case KindReference:
		key, payload = "referenceValue", v.s
	case KindGeoPoint:
		key, payload = "geoPointValue", v.geo
	case KindArray:
		values := v.arr
		if values == nil {
			values = []Value{}
		}
		key, payload = "arrayValue", arrayPayload{Values: values}
	case KindMap:
		fields := v.m
		if fields == nil {
			fields = Fields{}
		}
		key, payload = "mapValue", mapPayload{Fields: fields}
	default:
		return nil, fmt.Errorf("docstore: cannot encode value of kind %s", v.kind)
	}
	return json.Marshal(map[string]any{key: payload})
}

// UnmarshalJSON decodes one typed-field envelope. An empty object decodes as
// null; an unknown type tag is an error.
func (v *Value) UnmarshalJSON(data []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("docstore: value: %w", err)
	}
	*v = Value{}
	if len(envelope) > 1 {
		return fmt.Errorf("docstore: value carries %d type tags", len(envelope))
	}
	for key, raw := range envelope {
		return v.decodeTagged(key, raw)
	}
	return nil
}

func (v *Value) decodeTagged(key string, raw json.RawMessage) error {
	switch key {
	case "nullValue":
		v.kind = KindNull
	case "booleanValue":
		v.kind = KindBoolean
		return decodeField(key, raw, &v.b)
	case "integerValue":
		var n json.Number
		if err := decodeField(key, raw, &n); err != nil {
			return err
		}
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return fmt.Errorf("docstore: integerValue %q: %w", n, err)
		}
		v.kind, v.i = KindInteger, i
	case "doubleValue":
		f, err := decodeDouble(raw)
		if err != nil {
			return err
		}
		v.kind, v.f = KindDouble, f
	case "timestampValue":
		var s string
		if err := decodeField(key, raw, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("docstore: timestampValue %q: %w", s, err)
		}
		v.kind, v.t = KindTimestamp, t.UTC()
	case "stringValue":
		v.kind = KindString
		return decodeField(key, raw, &v.s)
	case "bytesValue":
		v.kind = KindBytes
		return decodeField(key, raw, &v.raw)
	case "referenceValue":
		v.kind = KindReference
		return decodeField(key, raw, &v.s)
	case "geoPointValue":
		v.kind = KindGeoPoint
		return decodeField(key, raw, &v.geo)
	case "arrayValue":
		var p arrayPayload
		if err := decodeField(key, raw, &p); err != nil {
			return err
		}
		*v = Array(p.Values...)
	case "mapValue":
		var p mapPayload
		if err := decodeField(key, raw, &p); err != nil {
			return err
		}
		*v = Map(p.Fields)
	default:
		return fmt.Errorf("docstore: unknown value type %q", key)
	}
	return nil
}

func decodeField(key string, raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("docstore: %s: %w", key, err)
	}
	return nil
}

func decodeDouble(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("docstore: doubleValue: %w", err)
	}
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}
