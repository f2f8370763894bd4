// Package main provides gobdctl, the operator CLI for the compliance ledger.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

// globalFlags identify the operator on audit entries written by commands.
type globalFlags struct {
	user    string
	session string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "gobdctl",
		Short:         "Operate the GoBD audit ledger, period locks and reference numbers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.user, "user", "u", defaultUser(), "User id recorded on audit entries")
	rootCmd.PersistentFlags().StringVar(&flags.session, "session", "", "Session id recorded on audit entries")

	rootCmd.AddCommand(
		newLockCmd(flags),
		newUnlockCmd(flags),
		newCheckCmd(),
		newLocksCmd(),
		newNextCmd(),
		newGapsCmd(),
		newBackfillCmd(flags),
		newAuditCmd(),
		newJobsCmd(),
	)
	return rootCmd
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}
