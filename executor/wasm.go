package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/caffeineduck/plbridge/plerr"
)

// GuestDir is where a Wasm interpreter finds the program file.
const GuestDir = "/program"

// Wasm runs a WASI build of the interpreter in-process with wazero. The
// interpreter sees only the program file, read-only, under GuestDir.
type Wasm struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	modules  map[string][]byte
	compiled map[string]wazero.CompiledModule
	mu       sync.RWMutex
	closed   bool
}

// WasmOption configures the Wasm runtime at creation time.
type WasmOption func(*wasmConfig)

type wasmConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32
}

// WithDiskCache enables a persistent compilation cache. Without dir the cache
// lives under XDG_CACHE_HOME/plbridge or ~/.cache/plbridge.
func WithDiskCache(dir ...string) WasmOption {
	return func(c *wasmConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit caps interpreter memory, in 64KiB pages. Zero keeps the
// wazero default of 4GiB.
func WithMemoryLimit(pages uint32) WasmOption {
	return func(c *wasmConfig) {
		c.memoryLimitPages = pages
	}
}

// NewWasm creates a Wasm runtime. Interpreter modules are registered per
// language with Register and compiled on first use.
func NewWasm(ctx context.Context, opts ...WasmOption) (*Wasm, error) {
	var cfg wasmConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	if cfg.diskCache {
		dir := cfg.cacheDir
		if dir == "" {
			dir = defaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(dir)
		if err != nil {
			return nil, errors.Wrap(err, "create disk cache")
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, errors.Wrap(err, "instantiate WASI")
	}

	return &Wasm{
		runtime:  rt,
		cache:    cache,
		modules:  make(map[string][]byte),
		compiled: make(map[string]wazero.CompiledModule),
	}, nil
}

// Register sets the interpreter module used for the language called name.
func (w *Wasm) Register(name string, module []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.modules[name] = module
	delete(w.compiled, name)
}

// Exec instantiates the interpreter with lang's argv, pointing it at the
// program's guest path. The module's exit code is reported as the exit
// status.
func (w *Wasm) Exec(ctx context.Context, lang Language, inv Invocation) (Exit, error) {
	name := filepath.Base(inv.Path)
	argv := lang.Command(GuestDir + "/" + name)
	exit := Exit{Argv: argv, Code: -1}

	compiled, err := w.getCompiled(ctx, lang.Name())
	if err != nil {
		return exit, err
	}

	cfg := wazero.NewModuleConfig().
		WithStdout(inv.Stdout).
		WithStderr(inv.Stderr).
		WithArgs(argv...).
		WithFSConfig(wazero.NewFSConfig().WithFSMount(newProgramFS(name, inv.Path), GuestDir)).
		WithSysWalltime().
		WithSysNanotime().
		WithName("")
	for _, kv := range inv.Env {
		k, v, _ := strings.Cut(kv, "=")
		cfg = cfg.WithEnv(k, v)
	}

	mod, err := w.runtime.InstantiateModule(ctx, compiled, cfg)
	if mod != nil {
		mod.Close(ctx)
	}
	if err == nil {
		exit.Code = 0
		return exit, nil
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		exit.Code = int(exitErr.ExitCode())
		return exit, nil
	}
	if ctx.Err() != nil {
		return exit, nil
	}
	// A trap (unreachable, out of bounds) ends the interpreter abnormally.
	return exit, plerr.Wrap(err, plerr.ErrInterpreterExecution, lang.Name()+" module")
}

// getCompiled returns a cached compiled module, compiling if necessary.
func (w *Wasm) getCompiled(ctx context.Context, name string) (wazero.CompiledModule, error) {
	w.mu.RLock()
	if compiled, ok := w.compiled[name]; ok && !w.closed {
		w.mu.RUnlock()
		return compiled, nil
	}
	w.mu.RUnlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, plerr.Newf(plerr.ErrInterpreterLaunch, "wasm runtime closed")
	}
	if compiled, ok := w.compiled[name]; ok {
		return compiled, nil
	}

	module, ok := w.modules[name]
	if !ok {
		return nil, plerr.Newf(plerr.ErrInterpreterLaunch, "no wasm module registered for %s", name)
	}
	compiled, err := w.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, plerr.Wrap(err, plerr.ErrInterpreterLaunch, "compile "+name)
	}

	w.compiled[name] = compiled
	return compiled, nil
}

// Close releases all resources held by the runtime.
func (w *Wasm) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	ctx := context.Background()
	err := w.runtime.Close(ctx)
	if w.cache != nil {
		err = errors.CombineErrors(err, w.cache.Close(ctx))
	}
	return err
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "plbridge")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "plbridge")
	}
	return filepath.Join(os.TempDir(), "plbridge-cache")
}
