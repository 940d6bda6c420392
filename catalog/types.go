package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq/oid"
)

// FuncID identifies a function in the host catalog (a pg_proc oid).
type FuncID uint32

// Type is a host type oid (a pg_type oid).
type Type uint32

// Types the bridge knows about. Every other oid is rejected when used as an
// argument type and when used as a return type.
const (
	Int4 = Type(oid.T_int4)
	Int8 = Type(oid.T_int8)
	Bool = Type(oid.T_bool)
	Text = Type(oid.T_text)
	Void = Type(oid.T_void)
)

var typeNames = map[Type]string{
	Int4: "int4",
	Int8: "int8",
	Bool: "bool",
	Text: "text",
	Void: "void",
}

var typeAliases = map[string]Type{
	"int4":    Int4,
	"int":     Int4,
	"integer": Int4,
	"int8":    Int8,
	"bigint":  Int8,
	"bool":    Bool,
	"boolean": Bool,
	"text":    Text,
	"void":    Void,
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("oid %d", uint32(t))
}

// Supported reports whether values of t can be passed as arguments.
func (t Type) Supported() bool {
	switch t {
	case Int4, Int8, Bool, Text:
		return true
	}
	return false
}

// ParseType maps an SQL type name to its Type. The "oid N" form produced by
// String for unnamed types is accepted too.
func ParseType(name string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if t, ok := typeAliases[key]; ok {
		return t, nil
	}
	if rest, ok := strings.CutPrefix(key, "oid "); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 32)
		if err == nil {
			return Type(n), nil
		}
	}
	return 0, errors.Newf("unknown type %q", name)
}

// MarshalText lets Type appear by name in JSON and YAML documents.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Arg is one declared argument of a function.
type Arg struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`
}

// Function is the catalog half of a call: everything the bridge needs to know
// about the function before looking at call-time values.
type Function struct {
	ID      FuncID `json:"oid" yaml:"oid"`
	Name    string `json:"name" yaml:"name"`
	Args    []Arg  `json:"args" yaml:"args"`
	Returns Type   `json:"returns" yaml:"returns"`
	Source  string `json:"source" yaml:"source"`
}
