// Package testinterp is a stand-in interpreter for tests. It understands just
// enough of a scripting language to exercise the bridge end to end:
//
//	import anything;             ignored
//	define n = 21;               also "def"
//	print n * 2;                 writes the raw value
//	return s + "!";              writes the value as a literal and stops
//	printenv ARG0;               writes an environment variable
//	sleep 5s;  exit 3;  fail oops;
//
// Expressions are literals, names, parentheses and the binary operators +, -
// and *, applied left to right. String literals are read like Iceberg's: \"
// becomes a quote, then \n a newline, and every other byte stands for itself.
//
// Syntax errors go to stderr as "error: <msg> at L:C" with exit status 0, the
// way real interpreters sometimes report compile errors; runtime errors exit
// with status 1.
//
// The interpreter runs inside the test binary itself. A package's TestMain
// calls [MainIfHelper] first, and [Language.Command] re-executes the binary in
// helper mode.
package testinterp

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caffeineduck/plbridge/language/iceberg"
	"github.com/caffeineduck/plbridge/program"
	"github.com/caffeineduck/plbridge/value"
)

const helperFlag = "-plbridge-test-interpreter"

// MainIfHelper runs the interpreter and exits when the process was started by
// Language.Command. It returns normally otherwise.
func MainIfHelper() {
	if len(os.Args) != 3 || os.Args[1] != helperFlag {
		return
	}
	src, err := os.ReadFile(os.Args[2])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	os.Exit(Eval(string(src), os.Stdout, os.Stderr))
}

// Language runs programs with the test interpreter.
type Language struct {
	// Keyword overrides the declaration keyword ("define").
	Keyword string
}

func (l Language) Name() string { return "testinterp" }

// Syntax declares with "define" and writes literals the way Iceberg reads
// them.
func (l Language) Syntax() program.Syntax {
	s := program.DefaultSyntax
	s.Literal = iceberg.Literal
	if l.Keyword != "" {
		s.DeclareKeyword = l.Keyword
	}
	return s
}

func (l Language) Command(path string) []string {
	return []string{os.Args[0], helperFlag, path}
}

var errorMarker = regexp.MustCompile(`(?m)^error: .* at \d+:\d+$`)

func (l Language) ErrorMarkers() []*regexp.Regexp {
	return []*regexp.Regexp{errorMarker}
}

type syntaxError struct {
	msg       string
	line, col int
}

func (e *syntaxError) Error() string { return fmt.Sprintf("%s at %d:%d", e.msg, e.line, e.col) }

type runtimeError struct{ msg string }

func (e *runtimeError) Error() string { return e.msg }

type exitRequest struct{ code int }

func (e *exitRequest) Error() string { return "exit " + strconv.Itoa(e.code) }

// Eval runs src and returns the exit status.
func Eval(src string, stdout, stderr io.Writer) int {
	in := &interp{vars: make(map[string]any), stdout: stdout}
	for _, st := range splitStatements(src) {
		done, err := in.exec(st)
		switch e := err.(type) {
		case nil:
		case *syntaxError:
			fmt.Fprintf(stderr, "error: %s\n", e)
			return 0
		case *exitRequest:
			return e.code
		default:
			fmt.Fprintf(stderr, "runtime error: %s\n", e)
			return 1
		}
		if done {
			break
		}
	}
	return 0
}

type statement struct {
	text      string
	line, col int
}

// splitStatements cuts src at semicolons outside string literals. An
// unterminated trailing statement is kept.
func splitStatements(src string) []statement {
	var (
		out        []statement
		start      int
		line, col  = 1, 1
		sLine      = 1
		sCol       = 1
		inString   bool
		escaped    bool
		seenSymbol bool
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if !seenSymbol && c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			seenSymbol = true
			sLine, sCol = line, col
		}
		switch {
		case inString && escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == ';':
			out = append(out, statement{text: src[start:i], line: sLine, col: sCol})
			start = i + 1
			seenSymbol = false
		}
		if c == '\n' {
			line, col = line+1, 1
		} else {
			col++
		}
	}
	if strings.TrimSpace(src[start:]) != "" {
		out = append(out, statement{text: src[start:], line: sLine, col: sCol})
	}
	return out
}

type interp struct {
	vars   map[string]any
	stdout io.Writer
}

func (in *interp) exec(st statement) (done bool, err error) {
	text := strings.TrimSpace(st.text)
	if text == "" {
		return false, nil
	}
	word, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)
	fail := func(msg string) error { return &syntaxError{msg: msg, line: st.line, col: st.col} }

	switch word {
	case "import":
		return false, nil
	case "define", "def":
		name, expr, ok := strings.Cut(rest, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t\"") {
			return false, fail("malformed declaration")
		}
		v, err := in.eval(strings.TrimSpace(expr), fail)
		if err != nil {
			return false, err
		}
		in.vars[name] = v
	case "print":
		v, err := in.eval(rest, fail)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(in.stdout, raw(v))
	case "return":
		v, err := in.eval(rest, fail)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(in.stdout, literal(v))
		return true, nil
	case "printenv":
		fmt.Fprintln(in.stdout, os.Getenv(rest))
	case "sleep":
		d, err := time.ParseDuration(rest)
		if err != nil {
			return false, fail("bad duration")
		}
		time.Sleep(d)
	case "exit":
		code, err := strconv.Atoi(rest)
		if err != nil {
			return false, fail("bad exit status")
		}
		return true, &exitRequest{code: code}
	case "fail":
		return false, fail(rest)
	default:
		return false, fail("unknown statement " + strconv.Quote(word))
	}
	return false, nil
}

// eval evaluates terms joined by +, - and *, left to right.
func (in *interp) eval(expr string, fail func(string) error) (any, error) {
	v, rest, err := in.expr(expr, fail)
	if err != nil {
		return nil, err
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		return nil, fail("unexpected " + strconv.Quote(rest))
	}
	return v, nil
}

// expr evaluates up to the end of s or an unmatched ')'.
func (in *interp) expr(s string, fail func(string) error) (any, string, error) {
	acc, rest, err := in.term(s, fail)
	if err != nil {
		return nil, "", err
	}
	for {
		rest = strings.TrimSpace(rest)
		if rest == "" || rest[0] == ')' {
			return acc, rest, nil
		}
		op := rest[0]
		if op != '+' && op != '-' && op != '*' {
			return nil, "", fail("unexpected " + strconv.Quote(rest))
		}
		var rhs any
		rhs, rest, err = in.term(strings.TrimSpace(rest[1:]), fail)
		if err != nil {
			return nil, "", err
		}
		acc, err = apply(op, acc, rhs)
		if err != nil {
			return nil, "", err
		}
	}
}

func (in *interp) term(s string, fail func(string) error) (any, string, error) {
	if s == "" {
		return nil, "", fail("missing expression")
	}
	switch s[0] {
	case '"':
		end := literalEnd(s)
		if end < 0 {
			return nil, "", fail("unterminated string")
		}
		str, err := iceberg.Unescape(s[:end])
		if err != nil {
			return nil, "", fail(err.Error())
		}
		return str, s[end:], nil
	case '(':
		v, rest, err := in.expr(strings.TrimSpace(s[1:]), fail)
		if err != nil {
			return nil, "", err
		}
		if rest == "" {
			return nil, "", fail("missing )")
		}
		return v, rest[1:], nil
	}

	// A leading minus belongs to a number.
	end := strings.IndexAny(s[1:], " \t+-*)") + 1
	if end == 0 {
		end = len(s)
	}
	word, rest := s[:end], s[end:]
	switch word {
	case "true":
		return true, rest, nil
	case "false":
		return false, rest, nil
	case "null":
		return nil, rest, nil
	}
	if n, err := strconv.ParseInt(word, 10, 64); err == nil {
		return n, rest, nil
	}
	v, ok := in.vars[word]
	if !ok {
		return nil, "", &runtimeError{msg: "undefined name " + word}
	}
	return v, rest, nil
}

// literalEnd returns the index just past the string literal at the start of
// s, or -1.
func literalEnd(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return -1
}

func apply(op byte, a, b any) (any, error) {
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		if !ok {
			break
		}
		switch op {
		case '+':
			return x + y, nil
		case '-':
			return x - y, nil
		}
		return x * y, nil
	case string:
		if op == '+' {
			return x + raw(b), nil
		}
	}
	return nil, &runtimeError{msg: fmt.Sprintf("cannot apply %c to %T and %T", op, a, b)}
}

func raw(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

func literal(v any) string {
	if s, ok := v.(string); ok {
		return value.Quote(s)
	}
	return raw(v)
}
