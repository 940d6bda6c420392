package bridge_test

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/caffeineduck/plbridge/bridge"
	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/executor"
	"github.com/caffeineduck/plbridge/internal/testinterp"
	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/value"
)

func TestMain(m *testing.M) {
	testinterp.MainIfHelper()
	os.Exit(m.Run())
}

const (
	doubleIt catalog.FuncID = 16400 + iota
	greet
	withImports
	sideEffect
	echo
	failing
	numericArg
	noSource
	slow
	fromEnv
	plainText
	echoInt4
	echoInt8
)

var functions = []catalog.Function{
	{ID: doubleIt, Name: "double_it", Args: []catalog.Arg{{Name: "n", Type: catalog.Int4}}, Returns: catalog.Int4, Source: "return n * 2;"},
	{ID: greet, Name: "greet", Args: []catalog.Arg{{Name: "s", Type: catalog.Text}}, Returns: catalog.Text, Source: `print "greeting"; return "Hello, " + s;`},
	{ID: withImports, Name: "with_imports", Args: []catalog.Arg{{Name: "big", Type: catalog.Int8}, {Name: "ok", Type: catalog.Bool}},
		Returns: catalog.Bool, Source: "import java.util.ArrayList;\nimport java.util.HashMap;\nprint big;\nreturn ok;"},
	{ID: sideEffect, Name: "side_effect", Returns: catalog.Void, Source: "print 1;"},
	{ID: echo, Name: "echo", Args: []catalog.Arg{{Name: "s", Type: catalog.Text}}, Returns: catalog.Text, Source: "return s;"},
	{ID: failing, Name: "failing", Returns: catalog.Int4, Source: "print 1;\nfail bad token;"},
	{ID: numericArg, Name: "numeric_arg", Args: []catalog.Arg{{Name: "x", Type: catalog.Type(1700)}}, Returns: catalog.Int4, Source: "return 1;"},
	{ID: noSource, Name: "no_source", Returns: catalog.Int4, Source: "  \n"},
	{ID: slow, Name: "slow", Returns: catalog.Int4, Source: "sleep 30s; return 1;"},
	{ID: fromEnv, Name: "from_env", Args: []catalog.Arg{{Name: "n", Type: catalog.Int4}}, Returns: catalog.Text, Source: "printenv ARG0;"},
	{ID: plainText, Name: "plain_text", Returns: catalog.Text, Source: `print "no quotes here";`},
	{ID: echoInt4, Name: "echo_int4", Args: []catalog.Arg{{Name: "n", Type: catalog.Int4}}, Returns: catalog.Int4, Source: "return n;"},
	{ID: echoInt8, Name: "echo_int8", Args: []catalog.Arg{{Name: "n", Type: catalog.Int8}}, Returns: catalog.Int8, Source: "return n;"},
}

func newHandler(t *testing.T, opts ...bridge.Option) (*bridge.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	exec := executor.New(executor.NewProcess(), executor.WithTempDir(dir))
	return bridge.New(catalog.NewMemory(functions...), exec, testinterp.Language{}, opts...), dir
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("leftover file %s", e.Name())
	}
}

func TestCall(t *testing.T) {
	tests := []struct {
		name string
		call bridge.Call
		want value.Value
	}{
		{"double", bridge.Call{Func: doubleIt, Args: []value.Value{value.Int4(21)}}, value.Int4(42)},
		{"quote in text", bridge.Call{Func: greet, Args: []value.Value{value.Text("O'Brien")}}, value.Text("Hello, O'Brien")},
		{"injection is inert", bridge.Call{Func: echo, Args: []value.Value{value.Text(`"; fail pwned; print "`)}}, value.Text(`"; fail pwned; print "`)},
		{"multiline text", bridge.Call{Func: echo, Args: []value.Value{value.Text("a\nb\\c")}}, value.Text("a\nb\\c")},
		{"tab and backslash", bridge.Call{Func: echo, Args: []value.Value{value.Text(`C:\dir` + "\t" + `"x"`)}}, value.Text(`C:\dir` + "\t" + `"x"`)},
		{"empty text", bridge.Call{Func: echo, Args: []value.Value{value.Text("")}}, value.Text("")},
		{"minimum int4", bridge.Call{Func: echoInt4, Args: []value.Value{value.Int4(math.MinInt32)}}, value.Int4(math.MinInt32)},
		{"minimum int8", bridge.Call{Func: echoInt8, Args: []value.Value{value.Int8(math.MinInt64)}}, value.Int8(math.MinInt64)},
		{"imports", bridge.Call{Func: withImports, Args: []value.Value{value.Int8(9000000000), value.Bool(true)}}, value.Bool(true)},
		{"void", bridge.Call{Func: sideEffect}, value.Null(catalog.Void)},
		{"verbatim text", bridge.Call{Func: plainText}, value.Text("no quotes here")},
	}
	h, dir := newHandler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Call(context.Background(), tt.call)
			if err != nil {
				t.Fatalf("Call failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	assertEmptyDir(t, dir)
}

func TestCallErrors(t *testing.T) {
	tests := []struct {
		name string
		call bridge.Call
		kind error
	}{
		{"unknown function", bridge.Call{Func: 1}, plerr.ErrNotFound},
		{"blank source", bridge.Call{Func: noSource}, plerr.ErrMissingSource},
		{"unsupported argument", bridge.Call{Func: numericArg, Args: []value.Value{value.Of(catalog.Type(1700), "1.5")}}, plerr.ErrUnsupportedArgumentType},
		{"wrong arity", bridge.Call{Func: doubleIt}, plerr.ErrInvalidArgument},
		{"text without literal form", bridge.Call{Func: echo, Args: []value.Value{value.Text(`C:\new`)}}, plerr.ErrInvalidArgument},
		{"error marker", bridge.Call{Func: failing}, plerr.ErrInterpreterExecution},
		// A null argument is not declared, so the body sees an undefined name.
		{"null argument", bridge.Call{Func: echo, Args: []value.Value{value.Null(catalog.Text)}}, plerr.ErrInterpreterExecution},
	}
	h, dir := newHandler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Call(context.Background(), tt.call)
			if !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}
	assertEmptyDir(t, dir)
}

type countingCatalog struct {
	catalog.Catalog
	lookups int
}

func (c *countingCatalog) Lookup(ctx context.Context, id catalog.FuncID) (*catalog.Function, error) {
	c.lookups++
	return c.Catalog.Lookup(ctx, id)
}

func TestCallReadsCatalogOnce(t *testing.T) {
	cat := &countingCatalog{Catalog: catalog.NewMemory(functions...)}
	exec := executor.New(executor.NewProcess(), executor.WithTempDir(t.TempDir()))
	h := bridge.New(cat, exec, testinterp.Language{})

	if _, err := h.Call(context.Background(), bridge.Call{Func: doubleIt, Args: []value.Value{value.Int4(1)}}); err != nil {
		t.Fatal(err)
	}
	if cat.lookups != 1 {
		t.Errorf("expected 1 lookup, got %d", cat.lookups)
	}
}

type recordingRuntime struct{ runs int }

func (r *recordingRuntime) Exec(ctx context.Context, lang executor.Language, inv executor.Invocation) (executor.Exit, error) {
	r.runs++
	return executor.Exit{}, nil
}

func TestFailedPreparationNeverRuns(t *testing.T) {
	rt := &recordingRuntime{}
	dir := t.TempDir()
	h := bridge.New(catalog.NewMemory(functions...), executor.New(rt, executor.WithTempDir(dir)), testinterp.Language{})

	calls := []bridge.Call{
		{Func: 1},
		{Func: noSource},
		{Func: numericArg, Args: []value.Value{value.Of(catalog.Type(1700), "1")}},
	}
	for _, c := range calls {
		if _, err := h.Call(context.Background(), c); err == nil {
			t.Errorf("call %d should fail", c.Func)
		}
	}
	if rt.runs != 0 {
		t.Errorf("interpreter started %d times", rt.runs)
	}
	assertEmptyDir(t, dir)
}

func TestCallTimeout(t *testing.T) {
	h, dir := newHandler(t, bridge.WithTimeout(200*time.Millisecond))

	_, err := h.Call(context.Background(), bridge.Call{Func: slow})
	if !errors.Is(err, plerr.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if plerr.SQLState(err) != "57014" {
		t.Errorf("unexpected SQLSTATE %s", plerr.SQLState(err))
	}
	assertEmptyDir(t, dir)
}

func TestCallEnvArgs(t *testing.T) {
	h, _ := newHandler(t, bridge.WithEnvArgs(true))

	got, err := h.Call(context.Background(), bridge.Call{Func: fromEnv, Args: []value.Value{value.Int4(5)}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Str() != "5" {
		t.Errorf("expected ARG0=5, got %v", got)
	}

	h, _ = newHandler(t)
	got, err = h.Call(context.Background(), bridge.Call{Func: fromEnv, Args: []value.Value{value.Int4(5)}})
	if !errors.Is(err, plerr.ErrResultDecode) {
		t.Errorf("without the side channel ARG0 is unset, got %v, %v", got, err)
	}
}

func TestCallErrorDetails(t *testing.T) {
	h, _ := newHandler(t)

	_, err := h.Call(context.Background(), bridge.Call{Func: failing})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "failing") {
		t.Errorf("error should name the function: %v", err)
	}
	details := strings.Join(plerr.Details(err), "\n")
	if !strings.Contains(details, "error: bad token at 2:1") {
		t.Errorf("details should carry stderr, got %q", details)
	}
}

func TestCallLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h, _ := newHandler(t, bridge.WithLogger(zap.New(core)))

	if _, err := h.Call(context.Background(), bridge.Call{Func: greet, Args: []value.Value{value.Text("x")}}); err != nil {
		t.Fatal(err)
	}

	assembled := logs.FilterMessage("program assembled").All()
	if len(assembled) != 1 {
		t.Fatalf("expected one program entry, got %d", len(assembled))
	}
	if p := assembled[0].ContextMap()["program"]; !strings.HasPrefix(p.(string), `define s = "x";`) {
		t.Errorf("unexpected program %q", p)
	}
	finished := logs.FilterMessage("call finished").All()
	if len(finished) != 1 || finished[0].ContextMap()["call_id"] == "" {
		t.Error("expected one finished entry with a call id")
	}
}

func TestPrepare(t *testing.T) {
	h, dir := newHandler(t)

	prog, err := h.Prepare(context.Background(), bridge.Call{
		Func: withImports,
		Args: []value.Value{value.Int8(1), value.Bool(false)},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "import java.util.ArrayList;\nimport java.util.HashMap;\n" +
		"define big = 1;\ndefine ok = false;\n" +
		"print big;\nreturn ok;"
	if prog.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", prog.String(), want)
	}
	assertEmptyDir(t, dir)
}

func TestCallTrigger(t *testing.T) {
	h, _ := newHandler(t)

	err := h.CallTrigger(context.Background(), bridge.Trigger{Func: doubleIt, Table: "accounts", Event: "INSERT"})
	if !errors.Is(err, plerr.ErrTriggerUnsupported) {
		t.Errorf("expected trigger error, got %v", err)
	}
	if plerr.SQLState(err) != "0A000" {
		t.Errorf("unexpected SQLSTATE %s", plerr.SQLState(err))
	}
}
