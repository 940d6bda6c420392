// Package decoder turns a finished interpreter run into the function's
// result value.
//
// The result protocol is line based: the last line the program wrote to
// stdout holds the result, in the interpreter's literal syntax. Earlier lines
// are ordinary program output and are only logged. Trailing blank lines are
// skipped for every type but text, where an empty last line is the empty
// string.
package decoder

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/executor"
	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/value"
)

// Decoder checks interpreter runs for failure and decodes their result.
type Decoder struct {
	markers []*regexp.Regexp
}

// New creates a Decoder that treats stderr matching any of markers as a
// failed program, whatever the exit status.
func New(markers ...*regexp.Regexp) *Decoder {
	return &Decoder{markers: markers}
}

// Decode returns the value of a run for a function returning ret. A void
// function always yields NULL once the run succeeded.
func (d *Decoder) Decode(ret catalog.Type, res executor.Result) (value.Value, error) {
	if err := d.Check(res); err != nil {
		return value.Value{}, err
	}
	if ret == catalog.Void {
		return value.Null(catalog.Void), nil
	}
	if !ret.Supported() {
		return value.Value{}, plerr.Newf(plerr.ErrResultDecode, "return type %s is not supported", ret)
	}

	if res.StdoutTruncated {
		return value.Value{}, withOutput(plerr.Newf(plerr.ErrResultDecode,
			"interpreter output exceeded the capture limit; the result line was lost"), res)
	}

	line, ok := LastLine(res.Stdout)
	if n := len(res.Stdout); ret == catalog.Text && n > 0 {
		line, ok = res.Stdout[n-1], true
	}
	if !ok {
		return value.Value{}, withOutput(plerr.Newf(plerr.ErrResultDecode,
			"interpreter produced no result for %s", ret), res)
	}
	v, err := Parse(ret, line)
	if err != nil {
		return value.Value{}, withOutput(err, res)
	}
	return v, nil
}

// Check reports a run that failed: one that could not complete, exited with
// a non-zero status, or wrote an error marker to stderr.
func (d *Decoder) Check(res executor.Result) error {
	if res.Error != nil {
		return res.Error
	}
	if res.ExitCode != 0 {
		return withOutput(plerr.Newf(plerr.ErrInterpreterExecution,
			"interpreter exited with status %d", res.ExitCode), res)
	}
	for _, m := range d.markers {
		if loc := m.FindStringIndex(res.Stderr); loc != nil {
			return withOutput(plerr.Newf(plerr.ErrInterpreterExecution,
				"interpreter reported %q", res.Stderr[loc[0]:loc[1]]), res)
		}
	}
	return nil
}

// LastLine returns the last line of stdout that is not blank.
func LastLine(stdout []string) (string, bool) {
	for i := len(stdout) - 1; i >= 0; i-- {
		if strings.TrimSpace(stdout[i]) != "" {
			return stdout[i], true
		}
	}
	return "", false
}

// Parse decodes a result line as a value of typ. Integers and booleans may
// be surrounded by blanks, and the word null stands for NULL. Text is taken
// verbatim unless the whole line is a double-quoted literal, which is
// unescaped.
func Parse(typ catalog.Type, line string) (value.Value, error) {
	if typ == catalog.Text {
		if len(line) >= 2 && line[0] == '"' && line[len(line)-1] == '"' {
			s, err := value.Unquote(line)
			if err != nil {
				return value.Value{}, plerr.Wrap(err, plerr.ErrResultDecode, "text result")
			}
			return value.Text(s), nil
		}
		return value.Text(line), nil
	}

	tok := strings.TrimSpace(line)
	if tok == "null" {
		return value.Null(typ), nil
	}
	switch typ {
	case catalog.Int4:
		n, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			return value.Value{}, plerr.Wrap(err, plerr.ErrResultDecode, "int4 result")
		}
		return value.Int4(int32(n)), nil
	case catalog.Int8:
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return value.Value{}, plerr.Wrap(err, plerr.ErrResultDecode, "int8 result")
		}
		return value.Int8(n), nil
	case catalog.Bool:
		switch tok {
		case "true", "t":
			return value.Bool(true), nil
		case "false", "f":
			return value.Bool(false), nil
		}
		return value.Value{}, plerr.Newf(plerr.ErrResultDecode, "bool result %q", tok)
	}
	return value.Value{}, plerr.Newf(plerr.ErrResultDecode, "return type %s is not supported", typ)
}

// withOutput attaches the run's diagnostics to err.
func withOutput(err error, res executor.Result) error {
	err = plerr.WithDetail(err, "exit status: "+strconv.Itoa(res.ExitCode))
	if len(res.Stdout) > 0 {
		err = plerr.WithDetail(err, "stdout:\n"+strings.Join(res.Stdout, "\n"))
	}
	if res.Stderr != "" {
		err = plerr.WithDetail(err, "stderr:\n"+res.Stderr)
	}
	return err
}
