// Package bridge is the call handler the host engine invokes for functions
// written in the bridged language.
//
// A call runs a fixed pipeline: catalog lookup, argument marshalling,
// program assembly, interpreter invocation and result decoding. Nothing is
// kept between calls; each one reads the catalog once and gets its own
// program file.
package bridge

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/decoder"
	"github.com/caffeineduck/plbridge/executor"
	"github.com/caffeineduck/plbridge/plerr"
	"github.com/caffeineduck/plbridge/program"
	"github.com/caffeineduck/plbridge/value"
)

// Call is one invocation of a function: its identity and its positional
// arguments.
type Call struct {
	Func catalog.FuncID
	Args []value.Value
}

// Trigger is an invocation of a function as a table trigger.
type Trigger struct {
	Func  catalog.FuncID
	Table string
	Event string
}

// Handler runs calls against a catalog, an executor and a language.
type Handler struct {
	catalog catalog.Catalog
	exec    *executor.Executor
	lang    executor.Language
	decoder *decoder.Decoder

	logger  *zap.Logger
	timeout time.Duration
	envArgs bool
	env     []string
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for per-call stage logging.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithTimeout bounds each interpreter run.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// WithEnvArgs also passes arguments through ARG<i> environment variables.
func WithEnvArgs(enabled bool) Option {
	return func(h *Handler) {
		h.envArgs = enabled
	}
}

// WithEnv adds KEY=VALUE entries to every interpreter environment.
func WithEnv(kv ...string) Option {
	return func(h *Handler) {
		h.env = append(h.env, kv...)
	}
}

// New creates a Handler.
func New(cat catalog.Catalog, exec *executor.Executor, lang executor.Language, opts ...Option) *Handler {
	h := &Handler{
		catalog: cat,
		exec:    exec,
		lang:    lang,
		decoder: decoder.New(lang.ErrorMarkers()...),
		logger:  zap.NewNop(),
		timeout: executor.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Language returns the language the handler runs.
func (h *Handler) Language() executor.Language {
	return h.lang
}

// Catalog returns the catalog the handler reads.
func (h *Handler) Catalog() catalog.Catalog {
	return h.catalog
}

// Call runs the function named by call and returns its result. Void
// functions return a NULL value.
func (h *Handler) Call(ctx context.Context, call Call) (value.Value, error) {
	callID := uuid.NewString()
	log := h.logger.With(zap.String("call_id", callID), zap.Uint32("func", uint32(call.Func)))

	fn, prog, err := h.prepare(ctx, log, call)
	if err != nil {
		log.Info("call failed", zap.Error(err))
		return value.Value{}, err
	}

	opts := []executor.Option{
		executor.WithCallID(callID),
		executor.WithTimeout(h.timeout),
		executor.WithEnv(h.env...),
	}
	if h.envArgs {
		opts = append(opts, executor.WithArgs(call.Args))
	}
	res := h.exec.Run(ctx, h.lang, prog, opts...)

	v, err := h.decoder.Decode(fn.Returns, res)
	if err != nil {
		err = errors.Wrapf(err, "%s", fn.Name)
		log.Info("call failed", zap.Error(err), zap.Int("exit_code", res.ExitCode))
		return value.Value{}, err
	}
	log.Info("call finished", zap.String("function", fn.Name), zap.Stringer("result", v),
		zap.Duration("duration", res.Duration))
	return v, nil
}

// Prepare runs the lookup, marshalling and assembly stages only and returns
// the program that Call would execute.
func (h *Handler) Prepare(ctx context.Context, call Call) (*program.Program, error) {
	_, prog, err := h.prepare(ctx, h.logger, call)
	return prog, err
}

func (h *Handler) prepare(ctx context.Context, log *zap.Logger, call Call) (*catalog.Function, *program.Program, error) {
	fn, err := h.catalog.Lookup(ctx, call.Func)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("catalog lookup", zap.String("function", fn.Name), zap.Int("args", len(fn.Args)),
		zap.Stringer("returns", fn.Returns))

	prog, err := program.Assemble(h.lang.Syntax(), fn, call.Args)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s", fn.Name)
	}
	log.Debug("program assembled", zap.String("program", prog.String()))
	return fn, prog, nil
}

// CallTrigger rejects trigger invocations: bridged functions cannot be used
// as triggers.
func (h *Handler) CallTrigger(ctx context.Context, trg Trigger) error {
	return plerr.Newf(plerr.ErrTriggerUnsupported, "function oid %d on %s (%s)", trg.Func, trg.Table, trg.Event)
}
