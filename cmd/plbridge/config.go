package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/caffeineduck/plbridge/bridge"
	"github.com/caffeineduck/plbridge/catalog"
	"github.com/caffeineduck/plbridge/executor"
	"github.com/caffeineduck/plbridge/language/iceberg"
)

type config struct {
	catalogFile string
	storePath   string
	dsn         string
	pgLanguage  string
	runtime     string
	wasmPath    string
	java        string
	jar         string
	jvmFlags    []string
	timeout     time.Duration
	tempDir     string
	envArgs     bool
	logLevel    string
	logFormat   string
}

func readConfig(cmd *cobra.Command) config {
	f := cmd.Flags()
	var c config
	c.catalogFile, _ = f.GetString("catalog")
	c.storePath, _ = f.GetString("store")
	c.dsn, _ = f.GetString("dsn")
	c.pgLanguage, _ = f.GetString("pg-language")
	c.runtime, _ = f.GetString("runtime")
	c.wasmPath, _ = f.GetString("wasm")
	c.java, _ = f.GetString("java")
	c.jar, _ = f.GetString("jar")
	c.jvmFlags, _ = f.GetStringSlice("jvm-flag")
	c.timeout, _ = f.GetDuration("timeout")
	c.tempDir, _ = f.GetString("tmpdir")
	c.envArgs, _ = f.GetBool("env-args")
	c.logLevel, _ = f.GetString("log-level")
	c.logFormat, _ = f.GetString("log-format")
	return c
}

func newLogger(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch format {
	case "console", "":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, errors.Newf("unknown log format %q: use console or json", format)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl)), nil
}

// app holds everything a command needs to run calls.
type app struct {
	cfg     config
	logger  *zap.Logger
	catalog catalog.Catalog
	handler *bridge.Handler
	closers []io.Closer
}

// newApp opens the configured catalog only. Commands that run functions
// also call withHandler.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg := readConfig(cmd)
	logger, err := newLogger(cfg.logLevel, cfg.logFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	cat, err := a.openCatalog(cmd.Context())
	if err != nil {
		return nil, err
	}
	a.catalog = cat
	return a, nil
}

func (a *app) openCatalog(ctx context.Context) (catalog.Catalog, error) {
	switch {
	case a.cfg.dsn != "":
		pg, err := catalog.OpenPostgres(ctx, a.cfg.dsn, catalog.WithLanguage(a.cfg.pgLanguage))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg)
		return pg, nil
	case a.cfg.storePath != "":
		st, err := catalog.OpenStore(ctx, a.cfg.storePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st)
		return st, nil
	case a.cfg.catalogFile != "":
		return catalog.LoadFile(a.cfg.catalogFile)
	}
	return nil, errors.New("no catalog configured: use --catalog, --store or --dsn")
}

// withHandler builds the interpreter runtime and the call handler.
func (a *app) withHandler(ctx context.Context) error {
	lang := iceberg.New(
		iceberg.WithJava(a.cfg.java),
		iceberg.WithJar(a.cfg.jar),
		iceberg.WithJVMFlags(a.cfg.jvmFlags...),
	)

	rt, err := a.newRuntime(ctx, lang)
	if err != nil {
		return err
	}
	exec := executor.New(rt,
		executor.WithLogger(a.logger),
		executor.WithTempDir(a.cfg.tempDir),
	)
	a.handler = bridge.New(a.catalog, exec, lang,
		bridge.WithLogger(a.logger),
		bridge.WithTimeout(a.cfg.timeout),
		bridge.WithEnvArgs(a.cfg.envArgs),
	)
	return nil
}

func (a *app) newRuntime(ctx context.Context, lang executor.Language) (executor.Runtime, error) {
	switch a.cfg.runtime {
	case "process", "":
		return executor.NewProcess(), nil
	case "wasm":
		if a.cfg.wasmPath == "" {
			return nil, errors.New("--runtime wasm requires --wasm")
		}
		module, err := os.ReadFile(a.cfg.wasmPath)
		if err != nil {
			return nil, errors.Wrap(err, "read interpreter module")
		}
		w, err := executor.NewWasm(ctx, executor.WithDiskCache())
		if err != nil {
			return nil, err
		}
		w.Register(lang.Name(), module)
		a.closers = append(a.closers, w)
		return w, nil
	}
	return nil, errors.Newf("unknown runtime %q: use process or wasm", a.cfg.runtime)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
