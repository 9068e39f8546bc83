package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/veritexai/internal/cli"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "veritex",
		Short: "Veritex - hybrid retrieval engine for grounded answers",
		Long: `Veritex ingests documents into a vector store and answers queries
with hybrid (semantic + keyword) retrieval, reranking, and
citation-annotated context assembly.

Configuration comes from VERITEX_* environment variables or a .env
file; see --env-file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("env-file", "", "Load environment from this file before reading config")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error; overrides config)")
	rootCmd.PersistentFlags().String("store", "pg", "Vector store backend: pg, qdrant, or memory")

	rootCmd.AddCommand(cli.IngestCmd())
	rootCmd.AddCommand(cli.QueryCmd())
	rootCmd.AddCommand(cli.DocsCmd())
	rootCmd.AddCommand(cli.DeleteCmd())
	rootCmd.AddCommand(cli.MigrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
