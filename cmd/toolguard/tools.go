package main

import (
	"github.com/spf13/cobra"
)

var toolsAll bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool definitions allowed by the policy as JSON",
	Args:  cobra.NoArgs,
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsAll, "all", false, "list every tool, ignoring the policy")
}

func runTools(cmd *cobra.Command, _ []string) error {
	sc, err := setup()
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	defs := sc.Toolkit.AllowedDefinitions()
	if toolsAll {
		defs = sc.Toolkit.Definitions()
	}
	return writeJSON(cmd.OutOrStdout(), defs)
}
