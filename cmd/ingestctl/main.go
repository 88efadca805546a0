package main

import (
	"os"

	"github.com/ignatij/ingestctl/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ingestctl",
	Short: "Configure, compose and monitor data-ingestion jobs",
}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		cli.Report(os.Stderr, err)
		os.Exit(1)
	}
}
