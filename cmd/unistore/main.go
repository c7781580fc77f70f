// Package main provides the entry point for the unistore CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version         = "0.1.0-dev"
	globalWorkspace string
	globalJSON      bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "unistore",
		Short:         "A multi-tenant entity store with an embedded relationship graph",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globalWorkspace, "workspace", "w", "", "Workspace to operate on (defaults to default_workspace in config)")
	rootCmd.PersistentFlags().BoolVar(&globalJSON, "json", false, "Print results as JSON")

	rootCmd.AddCommand(
		newInitCmd(),
		newMigrateCmd(),
		newCreateCmd(),
		newGetCmd(),
		newFindCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newLinkCmd(),
		newUnlinkCmd(),
		newRelatedCmd(),
		newRelationsCmd(),
		newActivityCmd(),
		newTypesCmd(),
		newImportCmd(),
		newExportCmd(),
		newSearchCmd(),
	)

	return rootCmd
}
