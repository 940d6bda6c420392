package executor

import (
	"context"
	"os"
	"os/exec"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/caffeineduck/plbridge/plerr"
)

// Process runs the interpreter as a child process. The argv from
// Language.Command is executed directly, without a shell.
type Process struct {
	env       []string
	dir       string
	waitDelay time.Duration
}

// ProcessOption configures a Process runtime.
type ProcessOption func(*Process)

// WithBaseEnv replaces the inherited environment of the interpreter.
// Per-run entries from WithEnv and WithArgs are appended to it.
func WithBaseEnv(env []string) ProcessOption {
	return func(p *Process) {
		p.env = slices.Clone(env)
	}
}

// WithDir sets the interpreter's working directory.
func WithDir(dir string) ProcessOption {
	return func(p *Process) {
		p.dir = dir
	}
}

// WithWaitDelay bounds how long Exec waits for the interpreter's output
// pipes to close after it was killed or exited.
func WithWaitDelay(d time.Duration) ProcessOption {
	return func(p *Process) {
		p.waitDelay = d
	}
}

// NewProcess creates a Process runtime inheriting the current environment.
func NewProcess(opts ...ProcessOption) *Process {
	p := &Process{
		env:       os.Environ(),
		waitDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Exec runs lang's command on inv.Path. When ctx is done the whole process
// group is killed, so interpreters that fork (a JVM launcher, a shell
// wrapper) do not outlive the call.
func (p *Process) Exec(ctx context.Context, lang Language, inv Invocation) (Exit, error) {
	argv := lang.Command(inv.Path)
	exit := Exit{Argv: argv, Code: -1}
	if len(argv) == 0 {
		return exit, plerr.Newf(plerr.ErrInterpreterLaunch, "%s: empty interpreter command", lang.Name())
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(slices.Clone(p.env), inv.Env...)
	cmd.Dir = p.dir
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	cmd.WaitDelay = p.waitDelay
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return exit, plerr.Wrap(err, plerr.ErrInterpreterLaunch, "start "+argv[0])
	}

	err := cmd.Wait()
	if cmd.ProcessState != nil {
		exit.Code = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || ctx.Err() != nil {
			return exit, nil
		}
		return exit, plerr.Wrap(err, plerr.ErrInterpreterExecution, "wait for "+argv[0])
	}
	return exit, nil
}
