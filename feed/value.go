package feed

import (
	"encoding/json"
	"strconv"
)

type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindArray
	KindObject
)

// Value is one node of a decoded feed document. XML and JSON feeds decode
// into the same shape: child elements become arrays, attributes live under
// "$" and element text next to attributes under "_".
type Value struct {
	Kind   Kind
	Text   string
	Items  []Value
	Fields map[string]Value
}

func Scalar(s string) Value {
	return Value{Kind: KindScalar, Text: s}
}

func Array(items ...Value) Value {
	return Value{Kind: KindArray, Items: items}
}

func Object(fields map[string]Value) Value {
	return Value{Kind: KindObject, Fields: fields}
}

// Unwrap returns the first element of an array, or v itself.
func (v Value) Unwrap() Value {
	if v.Kind != KindArray {
		return v
	}
	if len(v.Items) == 0 {
		return Value{}
	}
	return v.Items[0]
}

// String returns the text of a scalar, or the "_" text of an element that
// also carries attributes. Anything else yields "".
func (v Value) String() string {
	u := v.Unwrap()
	switch u.Kind {
	case KindScalar:
		return u.Text
	case KindObject:
		if text, ok := u.Fields["_"]; ok {
			return text.String()
		}
	}
	return ""
}

func (v Value) Field(name string) (Value, bool) {
	u := v.Unwrap()
	if u.Kind != KindObject {
		return Value{}, false
	}
	f, ok := u.Fields[name]
	return f, ok
}

// List returns the elements of an array; a single non-null value is
// treated as a one-element list.
func (v Value) List() []Value {
	switch v.Kind {
	case KindNull:
		return nil
	case KindArray:
		return v.Items
	}
	return []Value{v}
}

// FromAny converts a value produced by encoding/json (with UseNumber) into
// a Value tree.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Value{}
	case string:
		return Scalar(t)
	case json.Number:
		return Scalar(t.String())
	case float64:
		return Scalar(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		return Scalar(strconv.FormatBool(t))
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, FromAny(item))
		}
		return Array(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}
		return Object(fields)
	}
	return Value{}
}
