package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	baseURL string
	timeout time.Duration
	actor   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "jibctl",
		Short:         "JIB ledger CLI tool",
		Long:          `A command line interface for cash calls, JIB statements and partner reconciliation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("JIBLEDGER_URL", "http://localhost:8080"), "Base URL of the ledger API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&opts.actor, "actor", os.Getenv("JIBLEDGER_ACTOR"), "Actor recorded in the audit trail")

	rootCmd.AddCommand(
		allocateCmd(),
		cashCallCmd(opts),
		jibCmd(opts),
		ledgerCmd(opts),
		settlementCmd(opts, "fund", "Record a cash call funding", "funding"),
		settlementCmd(opts, "pay", "Record a JIB payment", "payments"),
		disputeCmd(opts),
		resolveCmd(opts),
		defaultCmd(opts),
		auditCmd(opts),
	)

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
