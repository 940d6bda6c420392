package iceberg

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/value"
)

// Keywords of the Iceberg grammar. None of them can name an argument.
var Keywords = []string{
	"and", "class", "def", "else", "extends", "false", "fun", "if", "import",
	"new", "not", "or", "print", "return", "then", "this", "true", "while",
}

// Literal renders v as an Iceberg literal.
//
// The compiler parses NUMBER tokens with Long.parseLong and has no negative
// literals, so the two minimum values are written as expressions.
func Literal(v value.Value) (string, error) {
	if v.IsNull() {
		return "", errors.New("null has no literal form")
	}
	switch v.Type() {
	case catalog.Int4, catalog.Int8:
		n := v.Int()
		switch n {
		case math.MinInt64:
			return "(-9223372036854775807 - 1)", nil
		case math.MinInt32:
			return "(-2147483647 - 1)", nil
		}
		return strconv.FormatInt(n, 10), nil
	case catalog.Bool:
		return strconv.FormatBool(v.BoolValue()), nil
	case catalog.Text:
		return Quote(v.Str())
	default:
		return "", errors.Newf("type %s has no literal form", v.Type())
	}
}

// Quote returns s as an Iceberg string literal.
//
// The compiler only turns \" into a quote and then \n into a newline; every
// other byte is taken as written. Text in which a backslash is followed by
// n, a quote, a newline or the end of the string reads back differently, and
// is rejected with ErrInvalidArgument.
func Quote(s string) (string, error) {
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			continue
		}
		if i+1 == len(s) {
			return "", plerr.Newf(plerr.ErrInvalidArgument,
				"text ending in a backslash has no Iceberg literal form")
		}
		switch s[i+1] {
		case 'n', '"', '\n':
			return "", plerr.Newf(plerr.ErrInvalidArgument,
				"text containing %q has no Iceberg literal form", s[i:i+2])
		}
	}

	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String(), nil
}

// Unescape reads a string literal the way the compiler does.
func Unescape(lit string) (string, error) {
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", errors.Newf("not a string literal: %s", lit)
	}
	s := strings.ReplaceAll(lit[1:len(lit)-1], `\"`, `"`)
	return strings.ReplaceAll(s, `\n`, "\n"), nil
}
