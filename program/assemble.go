package program

import (
	"strings"

	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/value"
)

// Program is an assembled program: header, argument declarations and body,
// in that order.
type Program struct {
	Header       string
	Declarations []string
	Body         string
}

// String returns the program text. Each declaration sits on its own line
// between the header and the body. Without declarations the text is the
// original source.
func (p *Program) String() string {
	if len(p.Declarations) == 0 {
		return p.Header + p.Body
	}

	size := len(p.Header) + len(p.Body) + 1
	for _, d := range p.Declarations {
		size += len(d) + 1
	}

	var b strings.Builder
	b.Grow(size)
	b.WriteString(p.Header)
	if p.Header != "" && !strings.HasSuffix(p.Header, "\n") {
		b.WriteByte('\n')
	}
	for _, d := range p.Declarations {
		b.WriteString(d)
		b.WriteByte('\n')
	}
	b.WriteString(p.Body)
	return b.String()
}

// SplitHeader splits src into its leading header (whitespace and import
// statements, including the whitespace that follows the last import) and the
// body. An import statement must be terminated before the end of src.
func SplitHeader(syntax Syntax, src string) (header, body string, err error) {
	syntax = syntax.withDefaults()

	i := skipSpace(src, 0)
	for hasKeyword(src[i:], syntax.ImportKeyword) {
		end := strings.IndexByte(src[i:], syntax.Terminator)
		if end < 0 {
			return "", "", plerr.Newf(plerr.ErrMalformedSource,
				"unterminated %s statement at offset %d", syntax.ImportKeyword, i)
		}
		i = skipSpace(src, i+end+1)
	}
	return src[:i], src[i:], nil
}

// Assemble marshals args and merges them into fn's source.
func Assemble(syntax Syntax, fn *catalog.Function, args []value.Value) (*Program, error) {
	decls, err := Declarations(syntax, fn, args)
	if err != nil {
		return nil, err
	}
	header, body, err := SplitHeader(syntax, fn.Source)
	if err != nil {
		return nil, err
	}
	return &Program{Header: header, Declarations: decls, Body: body}, nil
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			i++
		default:
			return i
		}
	}
	return i
}

// hasKeyword reports whether s starts with kw as a whole word.
func hasKeyword(s, kw string) bool {
	if !strings.HasPrefix(s, kw) {
		return false
	}
	if len(s) == len(kw) {
		return true
	}
	c := s[len(kw)]
	return !(c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9')
}
