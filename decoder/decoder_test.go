package decoder

import (
	"regexp"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/executor"
	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/value"
)

var markers = []*regexp.Regexp{
	regexp.MustCompile(`Exception in thread`),
	regexp.MustCompile(`(?m)^.* at \d+:\d+$`),
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		ret    catalog.Type
		stdout []string
		want   value.Value
	}{
		{"int4", catalog.Int4, []string{"42"}, value.Int4(42)},
		{"last line wins", catalog.Int4, []string{"debug 1", "7", "42"}, value.Int4(42)},
		{"trailing blank lines", catalog.Int4, []string{"42", "", "  "}, value.Int4(42)},
		{"padded int", catalog.Int8, []string{" 9000000000 "}, value.Int8(9000000000)},
		{"negative", catalog.Int4, []string{"-5"}, value.Int4(-5)},
		{"bool", catalog.Bool, []string{"true"}, value.Bool(true)},
		{"bool short", catalog.Bool, []string{"f"}, value.Bool(false)},
		{"text verbatim", catalog.Text, []string{"hello world"}, value.Text("hello world")},
		{"text literal", catalog.Text, []string{`"O'Brien\nsaid \"hi\""`}, value.Text("O'Brien\nsaid \"hi\"")},
		{"text keeps spaces", catalog.Text, []string{"  padded  "}, value.Text("  padded  ")},
		{"text null is text", catalog.Text, []string{"null"}, value.Text("null")},
		{"empty text", catalog.Text, []string{"debug", ""}, value.Text("")},
		{"blank text", catalog.Text, []string{"", " "}, value.Text(" ")},
		{"quoted empty text", catalog.Text, []string{`""`}, value.Text("")},
		{"int null", catalog.Int4, []string{"null"}, value.Null(catalog.Int4)},
		{"void ignores output", catalog.Void, []string{"whatever"}, value.Null(catalog.Void)},
		{"void without output", catalog.Void, nil, value.Null(catalog.Void)},
	}
	d := New(markers...)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Decode(tt.ret, executor.Result{Stdout: tt.stdout})
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		ret  catalog.Type
		res  executor.Result
		kind error
	}{
		{"no output", catalog.Int4, executor.Result{}, plerr.ErrResultDecode},
		{"blank output", catalog.Int4, executor.Result{Stdout: []string{"", " "}}, plerr.ErrResultDecode},
		{"no text output", catalog.Text, executor.Result{}, plerr.ErrResultDecode},
		{"truncated output", catalog.Int4, executor.Result{Stdout: []string{"1", "2"}, StdoutTruncated: true}, plerr.ErrResultDecode},
		{"not a number", catalog.Int4, executor.Result{Stdout: []string{"forty-two"}}, plerr.ErrResultDecode},
		{"int4 overflow", catalog.Int4, executor.Result{Stdout: []string{"2147483648"}}, plerr.ErrResultDecode},
		{"bad bool", catalog.Bool, executor.Result{Stdout: []string{"yes"}}, plerr.ErrResultDecode},
		{"bad literal", catalog.Text, executor.Result{Stdout: []string{`"a" + "b"`}}, plerr.ErrResultDecode},
		{"unsupported return", catalog.Type(1700), executor.Result{Stdout: []string{"1.5"}}, plerr.ErrResultDecode},
		{"exit status", catalog.Int4, executor.Result{ExitCode: 1, Stdout: []string{"42"}}, plerr.ErrInterpreterExecution},
		{
			"marker with exit 0", catalog.Int4,
			executor.Result{Stdout: []string{"42"}, Stderr: "unexpected token at 3:14\n"},
			plerr.ErrInterpreterExecution,
		},
		{
			"exception", catalog.Void,
			executor.Result{Stderr: "Exception in thread \"main\" java.lang.RuntimeException"},
			plerr.ErrInterpreterExecution,
		},
		{"run error passes through", catalog.Int4, executor.Result{Error: plerr.Newf(plerr.ErrTimeout, "slow")}, plerr.ErrTimeout},
	}
	d := New(markers...)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(tt.ret, tt.res)
			if !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestCheckDetails(t *testing.T) {
	res := executor.Result{
		ExitCode: 2,
		Stdout:   []string{"partial"},
		Stderr:   "boom\n",
	}
	err := New().Check(res)
	if !errors.Is(err, plerr.ErrInterpreterExecution) {
		t.Fatalf("expected execution error, got %v", err)
	}

	details := strings.Join(plerr.Details(err), "\n")
	for _, want := range []string{"exit status: 2", "stdout:\npartial", "stderr:\nboom"} {
		if !strings.Contains(details, want) {
			t.Errorf("details missing %q:\n%s", want, details)
		}
	}
}

func TestStderrWithoutMarkerIsNotFailure(t *testing.T) {
	d := New(markers...)
	got, err := d.Decode(catalog.Int4, executor.Result{Stdout: []string{"1"}, Stderr: "warning: deprecated\n"})
	if err != nil {
		t.Fatalf("plain stderr should not fail the call: %v", err)
	}
	if got.Int() != 1 {
		t.Errorf("got %v", got)
	}
}

func TestParseRoundTripsLiterals(t *testing.T) {
	for _, v := range []value.Value{value.Int4(-1), value.Int8(1 << 50), value.Bool(true), value.Text("a\tb\"c\\")} {
		lit, err := v.Literal()
		if err != nil {
			t.Fatal(err)
		}
		got, err := Parse(v.Type(), lit)
		if err != nil {
			t.Fatalf("Parse(%s): %v", lit, err)
		}
		if !got.Equal(v) {
			t.Errorf("literal %s decoded to %v", lit, got)
		}
	}
}
