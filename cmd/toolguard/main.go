// toolguard is a sandboxed, policy-governed tool runtime for AI agents.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagConfig     string
	flagWorkspace  string
	flagWriteScope string
	flagLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "toolguard",
	Short: "toolguard: sandboxed, policy-governed tools for AI agents.",
	Long: `toolguard exposes a fixed catalog of workspace tools (apply_patch, exec_command,
tree, read_file, git_status_summary) behind a per-tool access policy and a
workspace sandbox. Every call is audited and returns a structured result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to config file (yaml, toml or json). Env: TOOLGUARD_CONFIG")
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", "", "Workspace root (default: config or current directory)")
	rootCmd.PersistentFlags().StringVar(&flagWriteScope, "write-scope", "", "read-only, workspace-write or unrestricted")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(toolsCmd, invokeCmd, execCmd, auditCmd, serveCmd, versionCmd)
	_ = godotenv.Load()
}

// exitError ends the process with code without printing anything further;
// the command has already written its result.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
