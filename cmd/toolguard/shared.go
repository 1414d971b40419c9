package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/toolguard/internal/config"
	"github.com/jkaninda/toolguard/internal/observability"
	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/security"
	"github.com/jkaninda/toolguard/internal/storage"
	pgstore "github.com/jkaninda/toolguard/internal/storage/postgres"
	sqlitestore "github.com/jkaninda/toolguard/internal/storage/sqlite"
	"github.com/jkaninda/toolguard/internal/toolkit"
	"github.com/jkaninda/toolguard/internal/tools"
	"github.com/jkaninda/toolguard/internal/workspace"
)

var errNoAuditStore = errors.New("audit store requires audit.driver sqlite or postgres")

// SharedComponents holds the subsystems every command needs. Built once by
// initShared, torn down by Cleanup.
type SharedComponents struct {
	Config  *config.Config
	Logger  *slog.Logger
	Obs     *observability.Observability
	Store   storage.AuditStore // nil unless audit uses a database driver.
	Toolkit *toolkit.Toolkit

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
	sc.cleanups = nil
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig reads the config file and applies the global flag overrides.
// Without --config or TOOLGUARD_CONFIG, ~/.toolguard/config.yaml is used
// when it exists.
func loadConfig() (*config.Config, error) {
	path := goutils.Env("TOOLGUARD_CONFIG", flagConfig)
	if path == "" {
		if state, err := workspace.DefaultState(); err == nil {
			if _, err := os.Stat(state.ConfigPath()); err == nil {
				path = state.ConfigPath()
			}
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flagWorkspace != "" {
		cfg.Workspace.Root = flagWorkspace
	}
	if flagWriteScope != "" {
		cfg.Workspace.WriteScope = flagWriteScope
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}

// setup loads config and builds the shared components.
// Callers must call sc.Cleanup() when done.
func setup() (*SharedComponents, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return initShared(cfg, newLogger(cfg))
}

// initShared wires workspace, observability, audit and the toolkit.
func initShared(cfg *config.Config, logger *slog.Logger) (_ *SharedComponents, err error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}
	defer func() {
		if err != nil {
			sc.Cleanup()
		}
	}()

	// Workspace.
	root, err := workspace.ResolveRoot(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	tc, err := tools.NewContext(tools.ContextOptions{
		WorkspaceRoot: root,
		WriteScope:    cfg.WriteScope(),
		Policy:        &cfg.Policy,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tool context: %w", err)
	}
	logger.Debug("workspace initialized", slog.String("root", root))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	})
	logger.Debug("observability initialized",
		slog.Bool("metrics", obs.Metrics != nil),
		slog.Bool("tracing", obs.Tracer != nil),
		slog.Bool("anomaly", obs.Anomaly != nil),
	)

	// Audit.
	auditor, err := sc.initAudit()
	if err != nil {
		return nil, fmt.Errorf("initializing audit: %w", err)
	}

	// Toolkit.
	spawner := obs.WrapSpawner(sandbox.NewProcessRunner(sandbox.ProcessConfig{Platform: tc.Env.Platform}, logger))
	kit, err := toolkit.New(tc, toolkit.Options{
		Logger:   logger,
		Spawner:  spawner,
		Auditor:  auditor,
		Observer: obs.ToolObserver(),
	})
	if err != nil {
		return nil, fmt.Errorf("initializing toolkit: %w", err)
	}
	sc.Toolkit = kit

	return sc, nil
}

// initAudit returns nil when auditing is disabled.
func (sc *SharedComponents) initAudit() (security.Auditor, error) {
	cfg := sc.Config
	if !cfg.Audit.Enabled {
		return nil, nil
	}

	switch cfg.Audit.Driver {
	case config.AuditDriverSQLite, config.AuditDriverPostgres:
		store, err := openAuditStore(cfg, sc.Logger)
		if err != nil {
			return nil, err
		}
		sc.Store = store
		sc.addCleanup(func() { _ = store.Close() })
		sc.Obs.Health.AddCheck("audit_store", store.Ping)
		return security.NewStoreAuditor(store, sc.Logger), nil
	default:
		path := cfg.Audit.Path
		if path == "" {
			state, err := workspace.DefaultState()
			if err != nil {
				return nil, err
			}
			path = state.AuditLogPath()
		}
		al, err := security.NewAuditLogger(path, sc.Logger)
		if err != nil {
			return nil, err
		}
		sc.addCleanup(func() { _ = al.Close() })
		sc.Logger.Debug("audit log opened", slog.String("path", path))
		return al, nil
	}
}

// openAuditStore opens the configured database store. It returns
// errNoAuditStore for the file driver.
func openAuditStore(cfg *config.Config, logger *slog.Logger) (storage.AuditStore, error) {
	switch cfg.Audit.Driver {
	case config.AuditDriverSQLite:
		path := cfg.Audit.Path
		if path == "" {
			state, err := workspace.DefaultState()
			if err != nil {
				return nil, err
			}
			path = state.DatabasePath()
		}
		store, err := sqlitestore.Open(sqlitestore.Config{Path: path}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.AuditDriverPostgres:
		store, err := pgstore.OpenStore(pgstore.Config{DSN: cfg.Audit.DSN}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errNoAuditStore
	}
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
