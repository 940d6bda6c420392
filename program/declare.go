// Package program turns a function's stored source and its call-time
// arguments into a self-contained program for the interpreter.
//
// Arguments become declarations (define n = 21;) placed after the source's
// leading import block and before the rest of the body, so the body sees them
// as already-bound names while imports keep their leading position.
package program

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/value"
)

// Syntax describes the parts of the interpreter grammar the assembler needs.
type Syntax struct {
	// DeclareKeyword starts a variable declaration.
	DeclareKeyword string
	// ImportKeyword starts a header statement.
	ImportKeyword string
	// Terminator ends a statement.
	Terminator byte
	// Reserved lists words that cannot name an argument, besides the two
	// keywords above.
	Reserved []string
	// Literal renders a non-null value in the language's literal form. When
	// nil, value.Value.Literal is used.
	Literal func(value.Value) (string, error)
}

// DefaultSyntax declares with "define", imports with "import" and terminates
// statements with ';'.
var DefaultSyntax = Syntax{
	DeclareKeyword: "define",
	ImportKeyword:  "import",
	Terminator:     ';',
	Reserved:       []string{"print", "return", "true", "false", "null"},
}

func (s Syntax) withDefaults() Syntax {
	if s.DeclareKeyword == "" {
		s.DeclareKeyword = DefaultSyntax.DeclareKeyword
	}
	if s.ImportKeyword == "" {
		s.ImportKeyword = DefaultSyntax.ImportKeyword
	}
	if s.Terminator == 0 {
		s.Terminator = DefaultSyntax.Terminator
	}
	return s
}

// Declare renders the declaration of argument pos (zero-based) bound to v.
//
// The type is taken from v when it carries one, else from the catalog. A null
// value yields no declaration at all (the empty string), whatever its type;
// an unsupported type is an error even when the value is null.
func Declare(syntax Syntax, pos int, arg catalog.Arg, v value.Value) (string, error) {
	syntax = syntax.withDefaults()

	typ := v.Type()
	if typ == 0 {
		typ = arg.Type
	}
	if !typ.Supported() {
		return "", plerr.Newf(plerr.ErrUnsupportedArgumentType,
			"argument $%d (%s) has type %s", pos+1, arg.Name, typ)
	}
	if !isIdentifier(arg.Name) {
		return "", plerr.Newf(plerr.ErrInvalidArgument,
			"argument $%d name %q is not an identifier", pos+1, arg.Name)
	}
	if syntax.reserved(arg.Name) {
		return "", plerr.Newf(plerr.ErrInvalidArgument,
			"argument $%d name %q is a reserved word", pos+1, arg.Name)
	}
	if v.IsNull() {
		return "", nil
	}

	literal := syntax.Literal
	if literal == nil {
		literal = value.Value.Literal
	}
	lit, err := literal(v)
	if err != nil {
		err = errors.Wrapf(err, "argument $%d (%s)", pos+1, arg.Name)
		if plerr.KindOf(err) == nil {
			err = plerr.Mark(err, plerr.ErrUnsupportedArgumentType)
		}
		return "", err
	}

	var b strings.Builder
	b.Grow(len(syntax.DeclareKeyword) + len(arg.Name) + len(lit) + 5)
	b.WriteString(syntax.DeclareKeyword)
	b.WriteByte(' ')
	b.WriteString(arg.Name)
	b.WriteString(" = ")
	b.WriteString(lit)
	b.WriteByte(syntax.Terminator)
	return b.String(), nil
}

// Declarations renders the declarations of all call-time arguments, in call
// order. The argument list must match the catalog signature one to one; the
// first argument that cannot be declared aborts the whole list.
func Declarations(syntax Syntax, fn *catalog.Function, args []value.Value) ([]string, error) {
	if len(args) != len(fn.Args) {
		return nil, plerr.Newf(plerr.ErrInvalidArgument,
			"%s takes %d arguments, got %d", fn.Name, len(fn.Args), len(args))
	}

	decls := make([]string, 0, len(args))
	for i, v := range args {
		decl, err := Declare(syntax, i, fn.Args[i], v)
		if err != nil {
			return nil, err
		}
		if decl != "" {
			decls = append(decls, decl)
		}
	}
	return decls, nil
}

func (s Syntax) reserved(name string) bool {
	if name == s.DeclareKeyword || name == s.ImportKeyword {
		return true
	}
	for _, w := range s.Reserved {
		if name == w {
			return true
		}
	}
	return false
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
