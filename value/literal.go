package value

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/caffeineduck/plbridge/catalog"
)

// Literal renders v in the generic literal form, which is also the form of
// quoted result lines. Text becomes a double-quoted string in which the
// quote, the backslash and every control character are escaped. Languages
// with a narrower string syntax supply their own renderer through
// program.Syntax.
func (v Value) Literal() (string, error) {
	if v.IsNull() {
		return "", errors.New("null has no literal form")
	}
	switch v.typ {
	case catalog.Int4, catalog.Int8:
		return strconv.FormatInt(v.i, 10), nil
	case catalog.Bool:
		if v.b {
			return "true", nil
		}
		return "false", nil
	case catalog.Text:
		return Quote(v.s), nil
	default:
		return "", errors.Newf("type %s has no literal form", v.typ)
	}
}

const hexDigits = "0123456789abcdef"

// Quote returns s as a double-quoted string literal.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[r>>4])
				b.WriteByte(hexDigits[r&0xf])
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Unquote is the inverse of Quote.
func Unquote(lit string) (string, error) {
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", errors.Newf("not a string literal: %s", lit)
	}
	body := lit[1 : len(lit)-1]

	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); {
		c := body[i]
		switch {
		case c == '"':
			return "", errors.Newf("unescaped quote at offset %d", i+1)
		case c != '\\':
			r, size := utf8.DecodeRuneInString(body[i:])
			b.WriteRune(r)
			i += size
			continue
		}

		if i+1 >= len(body) {
			return "", errors.New("dangling escape at end of literal")
		}
		switch body[i+1] {
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'u':
			if i+6 > len(body) {
				return "", errors.Newf("short \\u escape at offset %d", i+1)
			}
			n, err := strconv.ParseUint(body[i+2:i+6], 16, 32)
			if err != nil {
				return "", errors.Wrapf(err, "bad \\u escape at offset %d", i+1)
			}
			b.WriteRune(rune(n))
			i += 6
			continue
		default:
			return "", errors.Newf("unknown escape \\%c at offset %d", body[i+1], i+1)
		}
		i += 2
	}
	return b.String(), nil
}

// ParseLiteral parses an interpreter literal of typ, the inverse of
// Value.Literal.
func ParseLiteral(typ catalog.Type, lit string) (Value, error) {
	switch typ {
	case catalog.Int4:
		n, err := strconv.ParseInt(lit, 10, 32)
		if err != nil {
			return Value{}, errors.Wrapf(err, "int4 literal")
		}
		return Int4(int32(n)), nil
	case catalog.Int8:
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return Value{}, errors.Wrapf(err, "int8 literal")
		}
		return Int8(n), nil
	case catalog.Bool:
		switch lit {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return Value{}, errors.Newf("bool literal: %q", lit)
	case catalog.Text:
		s, err := Unquote(lit)
		if err != nil {
			return Value{}, errors.Wrap(err, "text literal")
		}
		return Text(s), nil
	default:
		return Value{}, errors.Newf("type %s has no literal form", typ)
	}
}
