package executor_test

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/executor"
	"github.com/caffeineduck/plbridge/internal/testinterp"
	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/program"
	"github.com/caffeineduck/plbridge/value"
)

var lang = testinterp.Language{}

func TestMain(m *testing.M) {
	testinterp.MainIfHelper()
	os.Exit(m.Run())
}

func source(body string) *program.Program {
	return &program.Program{Body: body}
}

func newExecutor(t *testing.T, opts ...executor.ExecutorOption) (*executor.Executor, string) {
	t.Helper()
	dir := t.TempDir()
	opts = append([]executor.ExecutorOption{executor.WithTempDir(dir)}, opts...)
	return executor.New(executor.NewProcess(), opts...), dir
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

func TestRunBasic(t *testing.T) {
	exec, _ := newExecutor(t)

	prog := &program.Program{
		Declarations: []string{"define n = 21;"},
		Body:         "print n * 2;",
	}
	result := exec.Run(context.Background(), lang, prog)
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if len(result.Stdout) != 1 || result.Stdout[0] != "42" {
		t.Errorf("expected [42], got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", result.ExitCode)
	}
	if len(result.Command) != 3 || result.Command[0] != os.Args[0] {
		t.Errorf("unexpected command %q", result.Command)
	}
	if result.CallID == "" {
		t.Error("expected a generated call id")
	}
	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestRunKeepsAllOutputLines(t *testing.T) {
	exec, _ := newExecutor(t)

	result := exec.Run(context.Background(), lang, source(`print 1; print "two"; print ""; print true;`))
	if result.Error != nil {
		t.Fatal(result.Error)
	}
	want := []string{"1", "two", "", "true"}
	if strings.Join(result.Stdout, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", result.Stdout, want)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	exec, _ := newExecutor(t)

	result := exec.Run(context.Background(), lang, source("print 1; exit 3;"))
	if result.Error != nil {
		t.Fatalf("non-zero exit should be left to the decoder, got %v", result.Error)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", result.ExitCode)
	}
}

func TestRunCapturesStderr(t *testing.T) {
	exec, _ := newExecutor(t)

	result := exec.Run(context.Background(), lang, source("fail broken;"))
	if result.Error != nil {
		t.Fatal(result.Error)
	}
	if result.Stderr != "error: broken at 1:1\n" {
		t.Errorf("unexpected stderr %q", result.Stderr)
	}
}

func TestRunStderrLimit(t *testing.T) {
	exec, _ := newExecutor(t, executor.WithStderrLimit(8))

	result := exec.Run(context.Background(), lang, source("fail this message is long;"))
	if result.Stderr != "error: t" || !result.StderrTruncated {
		t.Errorf("expected truncated stderr, got %q", result.Stderr)
	}
}

func TestRunStdoutLimit(t *testing.T) {
	exec, _ := newExecutor(t, executor.WithStdoutLimit(8))

	result := exec.Run(context.Background(), lang, source(`print "first"; print "second line"; return 1;`))
	if result.Error != nil {
		t.Fatal(result.Error)
	}
	if len(result.Stdout) != 1 || result.Stdout[0] != "first" {
		t.Errorf("expected only the first line, got %q", result.Stdout)
	}
	if !result.StdoutTruncated {
		t.Error("expected stdout to be marked truncated")
	}

	result = exec.Run(context.Background(), lang, source("return 1;"))
	if result.StdoutTruncated || len(result.Stdout) != 1 {
		t.Errorf("small output should be kept whole: %q truncated=%v", result.Stdout, result.StdoutTruncated)
	}
}

func TestRunTimeout(t *testing.T) {
	exec, dir := newExecutor(t)

	start := time.Now()
	result := exec.Run(context.Background(), lang, source("sleep 30s;"), executor.WithTimeout(200*time.Millisecond))
	if !errors.Is(result.Error, plerr.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", result.Error)
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("interpreter outlived its deadline: %v", time.Since(start))
	}
	assertEmptyDir(t, dir)
}

func TestRunCanceled(t *testing.T) {
	exec, _ := newExecutor(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	result := exec.Run(ctx, lang, source("sleep 30s;"))
	if !errors.Is(result.Error, plerr.ErrTimeout) {
		t.Fatalf("expected cancellation to report as timeout, got %v", result.Error)
	}
	if !strings.Contains(result.Error.Error(), "canceled") {
		t.Errorf("expected cancellation in message, got %v", result.Error)
	}
}

type missingInterpreter struct{ testinterp.Language }

func (missingInterpreter) Command(path string) []string {
	return []string{"/nonexistent/interpreter", path}
}

type emptyCommand struct{ testinterp.Language }

func (emptyCommand) Command(string) []string { return nil }

func TestRunLaunchFailure(t *testing.T) {
	exec, dir := newExecutor(t)

	for _, l := range []executor.Language{missingInterpreter{}, emptyCommand{}} {
		result := exec.Run(context.Background(), l, source("print 1;"))
		if !errors.Is(result.Error, plerr.ErrInterpreterLaunch) {
			t.Errorf("expected launch error, got %v", result.Error)
		}
	}
	assertEmptyDir(t, dir)
}

func TestRunTempFileError(t *testing.T) {
	exec := executor.New(executor.NewProcess(), executor.WithTempDir("/nonexistent/plbridge"))

	result := exec.Run(context.Background(), lang, source("print 1;"))
	if !errors.Is(result.Error, plerr.ErrTempFile) {
		t.Fatalf("expected temp file error, got %v", result.Error)
	}
	if result.Command != nil {
		t.Error("interpreter must not start without a program file")
	}
}

func TestRunRemovesProgramFiles(t *testing.T) {
	exec, dir := newExecutor(t)

	bodies := []string{"print 1;", "exit 2;", "fail x;", "print y;", "sleep 5s;"}
	for _, body := range bodies {
		exec.Run(context.Background(), lang, source(body), executor.WithTimeout(100*time.Millisecond))
	}
	assertEmptyDir(t, dir)
}

func TestRunProgramFileName(t *testing.T) {
	exec, dir := newExecutor(t)

	result := exec.Run(context.Background(), lang, source("print 1;"), executor.WithCallID("abc"))
	if result.CallID != "abc" {
		t.Errorf("expected call id abc, got %q", result.CallID)
	}
	path := result.Command[len(result.Command)-1]
	if !strings.HasPrefix(path, dir+string(os.PathSeparator)+"plbridge-testinterp-abc-") {
		t.Errorf("unexpected program path %q", path)
	}
}

func TestRunArgsSideChannel(t *testing.T) {
	exec, _ := newExecutor(t)

	args := []value.Value{value.Int4(7), value.Null(catalog.Text), value.Text(`"; rm -rf /`), value.Bool(true)}
	result := exec.Run(context.Background(), lang,
		source("printenv ARG0; printenv ARG1; printenv ARG2; printenv ARG3; printenv EXTRA;"),
		executor.WithArgs(args), executor.WithEnv("EXTRA=yes"))
	if result.Error != nil {
		t.Fatal(result.Error)
	}
	want := []string{"7", "", `"; rm -rf /`, "true", "yes"}
	if strings.Join(result.Stdout, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", result.Stdout, want)
	}
}

func TestRunArgsRejectNUL(t *testing.T) {
	exec, dir := newExecutor(t)

	result := exec.Run(context.Background(), lang, source("print 1;"),
		executor.WithArgs([]value.Value{value.Text("a\x00b")}))
	if !errors.Is(result.Error, plerr.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", result.Error)
	}
	assertEmptyDir(t, dir)
}

func TestRunLogsOutputLines(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	exec, _ := newExecutor(t, executor.WithLogger(zap.New(core)))

	result := exec.Run(context.Background(), lang, source("print 1; print 2; print 3;"), executor.WithCallID("call-1"))
	if result.Error != nil {
		t.Fatal(result.Error)
	}

	entries := logs.FilterMessage("interpreter output").All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 output entries, got %d", len(entries))
	}
	for i, e := range entries {
		fields := e.ContextMap()
		if fields["line"] != strconv.Itoa(i+1) {
			t.Errorf("entry %d: line %v", i, fields["line"])
		}
		if fields["call_id"] != "call-1" {
			t.Errorf("entry %d: call_id %v", i, fields["call_id"])
		}
	}
	if logs.FilterMessage("exit status").Len() != 1 {
		t.Error("expected one exit status entry")
	}
}

func TestConcurrentRuns(t *testing.T) {
	exec, dir := newExecutor(t)

	const numGoroutines = 20
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	errs := make(chan error, numGoroutines)
	for i := range numGoroutines {
		go func(id int) {
			defer wg.Done()
			prog := &program.Program{
				Declarations: []string{"define n = " + strconv.Itoa(id) + ";"},
				Body:         "print n * 2;",
			}
			result := exec.Run(context.Background(), lang, prog)
			if result.Error != nil {
				errs <- result.Error
				return
			}
			if len(result.Stdout) != 1 || result.Stdout[0] != strconv.Itoa(id*2) {
				errs <- errors.Newf("call %d: got %q", id, result.Stdout)
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent run failed: %v", err)
	}
	assertEmptyDir(t, dir)
}
