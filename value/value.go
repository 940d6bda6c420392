// Package value holds the typed call-time values exchanged with the host
// engine, and their textual forms: interpreter literals, environment
// side-channel strings, and user input.
package value

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/caffeineduck/plbridge/catalog"
)

// Value is an immutable typed value. The zero Value is a null of unknown
// type.
type Value struct {
	typ  catalog.Type
	null bool
	i    int64
	b    bool
	s    string
}

func Int4(v int32) Value { return Value{typ: catalog.Int4, i: int64(v)} }

func Int8(v int64) Value { return Value{typ: catalog.Int8, i: v} }

func Bool(v bool) Value { return Value{typ: catalog.Bool, b: v} }

func Text(v string) Value { return Value{typ: catalog.Text, s: v} }

// Null returns the null value of typ.
func Null(typ catalog.Type) Value { return Value{typ: typ, null: true} }

// Of wraps a value of an arbitrary host type. The bridge cannot render it;
// it exists so callers can hand unsupported arguments to the bridge and have
// them rejected there, with the position and type named.
func Of(typ catalog.Type, raw string) Value {
	return Value{typ: typ, s: raw}
}

func (v Value) Type() catalog.Type { return v.typ }

func (v Value) IsNull() bool { return v.null || v.typ == 0 }

// Int returns the integer payload of an int4 or int8 value.
func (v Value) Int() int64 { return v.i }

func (v Value) BoolValue() bool { return v.b }

// Str returns the text payload.
func (v Value) Str() string { return v.s }

// Any returns the payload as a Go value (int32, int64, bool, string), or nil
// for null.
func (v Value) Any() any {
	if v.IsNull() {
		return nil
	}
	switch v.typ {
	case catalog.Int4:
		return int32(v.i)
	case catalog.Int8:
		return v.i
	case catalog.Bool:
		return v.b
	default:
		return v.s
	}
}

// Equal reports whether v and o have the same type and payload.
func (v Value) Equal(o Value) bool {
	return v == o
}

func (v Value) String() string {
	if v.IsNull() {
		return "null"
	}
	switch v.typ {
	case catalog.Int4, catalog.Int8:
		return strconv.FormatInt(v.i, 10)
	case catalog.Bool:
		return strconv.FormatBool(v.b)
	default:
		return v.s
	}
}

// Env renders v for the ARG<i> environment side channel: decimal integers,
// true/false, and raw text. The interpreter parses these with its own
// string-to-type conversions.
func (v Value) Env() (string, error) {
	if v.IsNull() {
		return "", errors.New("null values have no environment form")
	}
	if !v.typ.Supported() {
		return "", errors.Newf("type %s has no environment form", v.typ)
	}
	return v.String(), nil
}

// Parse reads user input (CLI arguments, HTTP payload strings) as a value of
// typ. Text is taken verbatim; the word NULL (any case) yields null for every
// type except text.
func Parse(typ catalog.Type, s string) (Value, error) {
	switch typ {
	case catalog.Int4:
		if isNullWord(s) {
			return Null(typ), nil
		}
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Value{}, errors.Wrapf(err, "parse %q as int4", s)
		}
		return Int4(int32(n)), nil
	case catalog.Int8:
		if isNullWord(s) {
			return Null(typ), nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, errors.Wrapf(err, "parse %q as int8", s)
		}
		return Int8(n), nil
	case catalog.Bool:
		if isNullWord(s) {
			return Null(typ), nil
		}
		b, err := parseBool(s)
		if err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case catalog.Text:
		return Text(s), nil
	default:
		return Of(typ, s), nil
	}
}

func isNullWord(s string) bool {
	return strings.EqualFold(s, "null")
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true", "t", "TRUE", "True":
		return true, nil
	case "false", "f", "FALSE", "False":
		return false, nil
	}
	return false, errors.Newf("parse %q as bool", s)
}
