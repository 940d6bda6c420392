package executor

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/program"
	"github.com/caffeineduck/plbridge/value"
)

// Result holds the captured output and metadata of one interpreter run.
type Result struct {
	CallID   string
	Command  []string
	ExitCode int
	Stdout   []string
	Stderr   string
	// StdoutTruncated and StderrTruncated report output dropped at the
	// executor's capture limits.
	StdoutTruncated bool
	StderrTruncated bool
	Duration        time.Duration
	Error           error
}

// Invocation is what a Runtime needs to run one program file.
type Invocation struct {
	// Path is the host path of the program file.
	Path   string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Exit describes a finished interpreter.
type Exit struct {
	Argv []string
	Code int
}

// Runtime starts the interpreter on a program file and waits for it. A
// non-zero exit status is reported through Exit, not as an error; errors are
// reserved for interpreters that could not be started or waited for.
type Runtime interface {
	Exec(ctx context.Context, lang Language, inv Invocation) (Exit, error)
}

// Executor writes assembled programs to private temp files and runs them on a
// Runtime. It keeps no per-call state and is safe for concurrent use.
type Executor struct {
	runtime Runtime
	cfg     executorConfig
}

// New creates an Executor running programs on rt.
func New(rt Runtime, opts ...ExecutorOption) *Executor {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Executor{runtime: rt, cfg: cfg}
}

// Run executes prog with lang's interpreter. The program file is removed
// before Run returns, whatever the outcome.
func (e *Executor) Run(ctx context.Context, lang Language, prog *program.Program, opts ...Option) Result {
	start := time.Now()

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.callID == "" {
		cfg.callID = uuid.NewString()
	}
	log := e.cfg.logger.With(zap.String("call_id", cfg.callID), zap.String("language", lang.Name()))

	result := Result{CallID: cfg.callID}
	finish := func(err error) Result {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	env, err := argEnv(cfg.args)
	if err != nil {
		return finish(err)
	}
	env = append(env, cfg.env...)

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	path, err := e.writeProgram(lang, cfg.callID, prog)
	if err != nil {
		return finish(err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("remove program file", zap.String("path", path), zap.Error(err))
		}
	}()

	stdout := newLineWriter(log, e.cfg.stdoutLimit)
	stderr := &limitedBuffer{limit: e.cfg.stderrLimit}

	log.Debug("invoking interpreter", zap.String("path", path))
	exit, err := e.runtime.Exec(ctx, lang, Invocation{
		Path:   path,
		Env:    env,
		Stdout: stdout,
		Stderr: stderr,
	})

	result.Command = exit.Argv
	result.ExitCode = exit.Code
	result.Stdout = stdout.flush()
	result.Stderr = stderr.String()
	result.StdoutTruncated = stdout.truncated
	result.StderrTruncated = stderr.truncated

	if s := result.Stderr; s != "" {
		log.Info("interpreter stderr", zap.String("stderr", s), zap.Bool("truncated", stderr.truncated))
	}
	log.Info("exit status", zap.Strings("command", exit.Argv), zap.Int("code", exit.Code),
		zap.Duration("duration", time.Since(start)))

	// A run that completed cleanly keeps its result even if the deadline
	// passed while it was being collected.
	switch {
	case ctx.Err() != nil && (err != nil || exit.Code != 0):
		reason := "canceled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "deadline exceeded"
			if cfg.timeout > 0 {
				reason = "exceeded " + cfg.timeout.String()
			}
		}
		err = plerr.Newf(plerr.ErrTimeout, "%s interpreter %s", lang.Name(), reason)
	case err != nil:
		if plerr.KindOf(err) == nil {
			err = plerr.Wrap(err, plerr.ErrInterpreterLaunch, "run "+lang.Name())
		}
	}
	return finish(err)
}

// writeProgram stores prog in a freshly created file that no other call can
// share, and closes it so the interpreter sees the full text.
func (e *Executor) writeProgram(lang Language, callID string, prog *program.Program) (string, error) {
	f, err := os.CreateTemp(e.cfg.tempDir, "plbridge-"+lang.Name()+"-"+callID+"-*")
	if err != nil {
		return "", plerr.Wrap(err, plerr.ErrTempFile, "create program file")
	}
	path := f.Name()

	if _, err := io.WriteString(f, prog.String()); err != nil {
		f.Close()
		os.Remove(path)
		return "", plerr.Wrap(err, plerr.ErrTempFile, "write program file")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", plerr.Wrap(err, plerr.ErrTempFile, "close program file")
	}
	return path, nil
}

// argEnv renders the ARG<i> side channel. Positions are zero-based, matching
// the interpreter's reader.
func argEnv(args []value.Value) ([]string, error) {
	env := make([]string, 0, len(args))
	for i, v := range args {
		if v.IsNull() {
			continue
		}
		s, err := v.Env()
		if err != nil {
			return nil, plerr.Mark(errors.Wrapf(err, "argument $%d", i+1), plerr.ErrUnsupportedArgumentType)
		}
		if strings.IndexByte(s, 0) >= 0 {
			return nil, plerr.Newf(plerr.ErrInvalidArgument, "argument $%d contains a NUL byte", i+1)
		}
		env = append(env, "ARG"+strconv.Itoa(i)+"="+s)
	}
	return env, nil
}
