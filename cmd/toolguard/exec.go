package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/toolguard/internal/sandbox"
	"github.com/jkaninda/toolguard/internal/tools"
	"github.com/jkaninda/toolguard/internal/tools/shell"
)

var (
	execCwd       string
	execDirect    bool
	execTimeout   time.Duration
	execMaxOutput int
	execStdin     string
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- command [args...]",
	Short: "Run a command through the guarded exec_command tool",
	Long: `Exec runs a command in the workspace under the exec_command policy and
prints the structured result. The process exit code is propagated; a timeout
exits 124 and a denied or failed call exits 1.`,
	Example: `  toolguard exec -- go test ./...
  toolguard exec --cwd sub --timeout 10s -- ls -la`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&execCwd, "cwd", "", "working directory (default: workspace root)")
	execCmd.Flags().BoolVar(&execDirect, "direct", false, "run the command tokens without a shell wrapper")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "kill the process after this long (default 30s, max 2m)")
	execCmd.Flags().IntVar(&execMaxOutput, "max-output", 0, "per-stream output cap in characters")
	execCmd.Flags().StringVar(&execStdin, "stdin", "", "text written to the process stdin")
}

func runExec(cmd *cobra.Command, args []string) error {
	sc, err := setup()
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cwd := execCwd
	if cwd == "" {
		cwd = sc.Toolkit.Context().WorkspaceRoot
	}

	res := sc.Toolkit.ExecCommand(ctx, cwd, args, execOptions(execDirect, execTimeout, execMaxOutput, execStdin))
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if code := execExitCode(res); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// execOptions builds the exec_command option bag. Zero values are left out
// so the tool applies its own defaults.
func execOptions(direct bool, timeout time.Duration, maxOutput int, stdin string) map[string]any {
	opts := map[string]any{}
	if direct {
		opts["shell_mode"] = string(sandbox.ShellModeDirect)
	}
	if timeout > 0 {
		opts["timeout_ms"] = int(timeout.Milliseconds())
	}
	if maxOutput > 0 {
		opts["max_output_chars"] = maxOutput
	}
	if stdin != "" {
		opts["stdin"] = stdin
	}
	return opts
}

func execExitCode(res tools.Result) int {
	if !res.OK() {
		return 1
	}
	out, ok := res.Data.(*shell.Output)
	if !ok || out == nil {
		return 0
	}
	switch {
	case out.TimedOut:
		return 124
	case out.ExitCode < 0:
		return 1
	default:
		return out.ExitCode
	}
}
