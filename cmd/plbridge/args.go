package main

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/value"
)

// parseArgs reads raw command line arguments as the declared parameter
// types of fn.
func parseArgs(fn *catalog.Function, raw []string) ([]value.Value, error) {
	if len(raw) != len(fn.Args) {
		return nil, plerr.Newf(plerr.ErrInvalidArgument, "%s takes %d arguments, got %d",
			fn.Name, len(fn.Args), len(raw))
	}
	vals := make([]value.Value, len(raw))
	for i, s := range raw {
		v, err := value.Parse(fn.Args[i].Type, s)
		if err != nil {
			return nil, plerr.Wrap(err, plerr.ErrInvalidArgument, "argument "+argName(fn, i))
		}
		vals[i] = v
	}
	return vals, nil
}

func argName(fn *catalog.Function, i int) string {
	if n := fn.Args[i].Name; n != "" {
		return n
	}
	return "$" + strconv.Itoa(i+1)
}

// splitArgs splits a REPL line into words. A word starting with a double
// quote runs to the matching quote and is unescaped.
func splitArgs(line string) ([]string, error) {
	var words []string
	for i := 0; i < len(line); {
		switch c := line[i]; {
		case c == ' ' || c == '\t':
			i++
		case c == '"':
			end := closingQuote(line, i)
			if end < 0 {
				return nil, errors.Newf("unterminated string starting at column %d", i+1)
			}
			w, err := value.Unquote(line[i : end+1])
			if err != nil {
				return nil, err
			}
			words = append(words, w)
			i = end + 1
		default:
			j := strings.IndexAny(line[i:], " \t")
			if j < 0 {
				j = len(line) - i
			}
			words = append(words, line[i:i+j])
			i += j
		}
	}
	return words, nil
}

func closingQuote(s string, start int) int {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
