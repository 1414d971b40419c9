package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/toolguard/internal/security"
	"github.com/jkaninda/toolguard/internal/storage"
)

var (
	auditLimit         int
	auditTool          string
	auditResult        string
	auditCorrelationID string
	auditSince         time.Duration
	auditOlderThan     time.Duration
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and prune the audit store (sqlite or postgres drivers)",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print recent audit events, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAuditList,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit events older than a duration",
	Args:  cobra.NoArgs,
	RunE:  runAuditPrune,
}

func init() {
	auditListCmd.Flags().IntVar(&auditLimit, "limit", storage.DefaultQueryLimit, "maximum number of events")
	auditListCmd.Flags().StringVar(&auditTool, "tool", "", "only events for this tool")
	auditListCmd.Flags().StringVar(&auditResult, "result", "", "only events with this result (success, failure, denied)")
	auditListCmd.Flags().StringVar(&auditCorrelationID, "correlation-id", "", "only events with this correlation ID")
	auditListCmd.Flags().DurationVar(&auditSince, "since", 0, "only events newer than this (e.g. 24h)")

	auditPruneCmd.Flags().DurationVar(&auditOlderThan, "older-than", 720*time.Hour, "delete events older than this")

	auditCmd.AddCommand(auditListCmd, auditPruneCmd)
}

// openStore opens the configured database audit store for the audit
// subcommands. Auditing need not be enabled.
func openStore() (storage.AuditStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openAuditStore(cfg, newLogger(cfg))
}

func runAuditList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	q := storage.AuditQuery{
		Limit:         auditLimit,
		Tool:          auditTool,
		Result:        auditResult,
		CorrelationID: auditCorrelationID,
	}
	if auditSince > 0 {
		q.Since = time.Now().UTC().Add(-auditSince)
	}

	events, err := store.List(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("listing audit events: %w", err)
	}
	if events == nil {
		events = []security.AuditEvent{}
	}
	return writeJSON(cmd.OutOrStdout(), events)
}

type pruneResult struct {
	Driver  string    `json:"driver"`
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

func runAuditPrune(cmd *cobra.Command, _ []string) error {
	if auditOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cutoff := time.Now().UTC().Add(-auditOlderThan)
	n, err := store.Prune(cmd.Context(), cutoff)
	if err != nil {
		return fmt.Errorf("pruning audit events: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), pruneResult{Driver: store.Driver(), Cutoff: cutoff, Deleted: n})
}
