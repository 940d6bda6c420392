package executor

import (
	"time"

	"go.uber.org/zap"

	"github.com/caffeineduck/plbridge/value"
)

// DefaultTimeout bounds a single interpreter run unless WithTimeout says
// otherwise.
const DefaultTimeout = 30 * time.Second

// Option configures a single Run.
type Option func(*runConfig)

type runConfig struct {
	timeout time.Duration
	env     []string
	args    []value.Value
	callID  string
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets the maximum execution time. Zero disables the limit and
// leaves only the caller's context in charge.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithEnv adds KEY=VALUE entries to the interpreter environment.
func WithEnv(kv ...string) Option {
	return func(c *runConfig) {
		c.env = append(c.env, kv...)
	}
}

// WithArgs exposes the call-time arguments as ARG0..ARGn environment
// variables. Null arguments are left unset.
func WithArgs(args []value.Value) Option {
	return func(c *runConfig) {
		c.args = args
	}
}

// WithCallID tags the run's log entries and temp file with id. A fresh id is
// generated when none is given.
func WithCallID(id string) Option {
	return func(c *runConfig) {
		c.callID = id
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	logger      *zap.Logger
	tempDir     string
	stdoutLimit int
	stderrLimit int
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger:      zap.NewNop(),
		stdoutLimit: 1 << 20,
		stderrLimit: 64 << 10,
	}
}

// WithLogger sets the logger receiving interpreter output and lifecycle
// events.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(c *executorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTempDir places program files in dir instead of os.TempDir().
func WithTempDir(dir string) ExecutorOption {
	return func(c *executorConfig) {
		c.tempDir = dir
	}
}

// WithStdoutLimit caps the captured stdout in bytes. Lines past the limit are
// dropped and the result is marked truncated. Zero keeps everything.
func WithStdoutLimit(n int) ExecutorOption {
	return func(c *executorConfig) {
		c.stdoutLimit = n
	}
}

// WithStderrLimit caps the captured stderr in bytes; output past the limit
// is discarded. Zero keeps everything.
func WithStderrLimit(n int) ExecutorOption {
	return func(c *executorConfig) {
		c.stderrLimit = n
	}
}
