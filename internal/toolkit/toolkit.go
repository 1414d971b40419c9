// Package toolkit assembles the fixed tool catalog for one ToolContext and
// exposes it two ways: guarded calls that always return a tools.Result, and
// a dispatcher that raises typed errors.
package toolkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/security"
	"github.com/jkaninda/toolguard/internal/tools"
	"github.com/jkaninda/toolguard/internal/tools/file"
	"github.com/jkaninda/toolguard/internal/tools/git"
	"github.com/jkaninda/toolguard/internal/tools/shell"
)

// Options wires optional collaborators into the toolkit.
type Options struct {
	Logger *slog.Logger

	// Spawner runs processes. Nil = a sandbox.ProcessRunner for the
	// context's platform.
	Spawner sandbox.Spawner

	Auditor  security.Auditor
	Observer tools.Observer
}

// Toolkit is the guarded tool surface bound to one ToolContext.
type Toolkit struct {
	tc         tools.ToolContext
	catalog    *tools.Catalog
	guarded    map[string]tools.GuardedFunc
	dispatcher *tools.Dispatcher
	logger     *slog.Logger
}

// NewCatalog builds the five-tool catalog in its canonical order.
func NewCatalog(spawner sandbox.Spawner, logger *slog.Logger) *tools.Catalog {
	exec := shell.NewTool(spawner, logger)
	return tools.NewCatalog(
		git.NewPatchTool(spawner, logger).Entry(),
		exec.Entry(),
		file.NewTreeTool(logger).Entry(),
		file.NewReadTool(logger).Entry(),
		git.NewStatusTool(exec, logger).Entry(),
	)
}

// New builds a toolkit for tc. It fails when the policy names a tool the
// catalog does not know.
func New(tc tools.ToolContext, opts Options) (*Toolkit, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	spawner := opts.Spawner
	if spawner == nil {
		spawner = sandbox.NewProcessRunner(sandbox.ProcessConfig{Platform: tc.Env.Platform}, logger)
	}

	catalog := NewCatalog(spawner, logger)
	if err := ValidatePolicy(catalog, tc.Policy); err != nil {
		return nil, err
	}

	guardOpts := []tools.Option{tools.WithLogger(logger)}
	if opts.Auditor != nil {
		guardOpts = append(guardOpts, tools.WithAuditor(opts.Auditor))
	}
	if opts.Observer != nil {
		guardOpts = append(guardOpts, tools.WithObserver(opts.Observer))
	}

	guarded := make(map[string]tools.GuardedFunc)
	for _, name := range catalog.Names() {
		e, _ := catalog.Get(name)
		guarded[name] = tools.NewSecureTool(e.Metadata, e.Handler, guardOpts...)
	}

	logger.Info("toolkit ready",
		slog.String("workspace", tc.WorkspaceRoot),
		slog.String("write_scope", string(tc.WriteScope)),
		slog.String("platform", string(tc.Env.Platform)),
		slog.Int("allowed_tools", len(tools.SelectAllowed(catalog.Definitions(), tc.Policy))),
	)

	return &Toolkit{
		tc:         tc,
		catalog:    catalog,
		guarded:    guarded,
		dispatcher: tools.NewDispatcher(catalog, tc, guardOpts...),
		logger:     logger,
	}, nil
}

// ValidatePolicy rejects policy entries for tools absent from catalog.
func ValidatePolicy(catalog *tools.Catalog, policy security.PolicyConfig) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	names := catalog.Names()
	unknown := make([]string, 0)
	for name := range policy.Tools {
		if !slices.Contains(names, name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return fmt.Errorf("policy references unknown tool %q", unknown[0])
}

// Context returns the bound ToolContext.
func (k *Toolkit) Context() tools.ToolContext { return k.tc }

// Catalog returns the underlying catalog.
func (k *Toolkit) Catalog() *tools.Catalog { return k.catalog }

// Definitions returns every tool definition.
func (k *Toolkit) Definitions() []tools.Definition {
	return k.catalog.Definitions()
}

// AllowedDefinitions returns the definitions the policy allows.
func (k *Toolkit) AllowedDefinitions() []tools.Definition {
	return tools.SelectAllowed(k.catalog.Definitions(), k.tc.Policy)
}

// Invoke dispatches a named tool with a named argument bag.
func (k *Toolkit) Invoke(ctx context.Context, name string, args any) (*tools.InvokeOutput, error) {
	return k.dispatcher.Invoke(ctx, name, args)
}

// Call runs a guarded tool with positional arguments. Unknown names are a
// runtime failure.
func (k *Toolkit) Call(ctx context.Context, name string, args ...any) tools.Result {
	fn, ok := k.guarded[name]
	if !ok {
		return tools.Result{
			Status:  tools.StatusFailure,
			Reason:  tools.ReasonRuntime,
			Message: "unknown tool: " + name,
		}
	}
	return fn(ctx, k.tc, args...)
}

// ApplyPatch applies a unified diff to filePath.
func (k *Toolkit) ApplyPatch(ctx context.Context, filePath, content string) tools.Result {
	return k.Call(ctx, git.PatchToolName, filePath, content)
}

// ExecCommand runs command in cwd. opts holds shell_mode, stdin,
// timeout_ms and max_output_chars.
func (k *Toolkit) ExecCommand(ctx context.Context, cwd string, command []string, opts map[string]any) tools.Result {
	return k.Call(ctx, shell.ToolName, cwd, command, opts)
}

// Tree lists the directory tree under path.
func (k *Toolkit) Tree(ctx context.Context, path string, opts map[string]any) tools.Result {
	return k.Call(ctx, file.TreeToolName, path, opts)
}

// ReadFile returns a line window of path.
func (k *Toolkit) ReadFile(ctx context.Context, path string, opts map[string]any) tools.Result {
	return k.Call(ctx, file.ReadToolName, path, opts)
}

// GitStatusSummary summarizes the repository containing cwd. An empty cwd
// means the workspace root.
func (k *Toolkit) GitStatusSummary(ctx context.Context, cwd string) tools.Result {
	if cwd == "" {
		return k.Call(ctx, git.StatusToolName)
	}
	return k.Call(ctx, git.StatusToolName, cwd)
}
