package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/toolguard/internal/security"
	"github.com/jkaninda/toolguard/internal/tools"
)

var (
	invokeArgs     string
	invokeArgsFile string
	invokeBypass   bool
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <tool>",
	Short: "Invoke a tool by name with a JSON argument object",
	Long: `Invoke dispatches a tool the way an agent runtime would and prints the
{"role": "function", "name": ..., "content": ...} envelope.

Failures print {"error": {"code", "tool_name", "message"}} and exit 1.`,
	Example: `  toolguard invoke tree --args '{"path": ".", "max_depth": 2}'
  toolguard invoke read_file --args-file args.json
  echo '{"cwd": "."}' | toolguard invoke git_status_summary --args-file -`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(&invokeArgs, "args", "", "tool arguments as a JSON object")
	invokeCmd.Flags().StringVar(&invokeArgsFile, "args-file", "", "read tool arguments from a JSON file (- for stdin)")
	invokeCmd.Flags().BoolVar(&invokeBypass, "bypass", false, "skip the access policy for this call (sandbox checks still apply)")
	invokeCmd.MarkFlagsMutuallyExclusive("args", "args-file")
}

// invokeErrorBody is printed when dispatch fails.
type invokeErrorBody struct {
	Error invokeErrorDetail `json:"error"`
}

type invokeErrorDetail struct {
	Code     string `json:"code"`
	ToolName string `json:"tool_name"`
	Message  string `json:"message"`
}

func newInvokeErrorBody(e *tools.InvokeError) invokeErrorBody {
	return invokeErrorBody{Error: invokeErrorDetail{
		Code:     e.Code,
		ToolName: e.ToolName,
		Message:  e.Message,
	}}
}

func runInvoke(cmd *cobra.Command, args []string) error {
	bag, err := readToolArgs(invokeArgs, invokeArgsFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	sc, err := setup()
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if invokeBypass {
		ctx = security.WithBypass(ctx)
	}

	out, err := sc.Toolkit.Invoke(ctx, args[0], bag)
	if err != nil {
		var ie *tools.InvokeError
		if !errors.As(err, &ie) {
			return err
		}
		if werr := writeJSON(cmd.OutOrStdout(), newInvokeErrorBody(ie)); werr != nil {
			return werr
		}
		return &exitError{code: 1}
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

// readToolArgs decodes the argument bag. With neither source set the bag is
// an empty object. Non-object JSON is passed through so the dispatcher can
// reject it with a typed error.
func readToolArgs(inline, file string, stdin io.Reader) (any, error) {
	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading tool arguments from stdin: %w", err)
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading tool arguments: %w", err)
		}
		data = b
	default:
		return map[string]any{}, nil
	}

	var bag any
	if err := json.Unmarshal(data, &bag); err != nil {
		return nil, fmt.Errorf("parsing tool arguments: %w", err)
	}
	return bag, nil
}
