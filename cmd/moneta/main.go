package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/moneta-pay/moneta/internal/interfaces/cli/migrate"
	"github.com/moneta-pay/moneta/internal/interfaces/cli/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "moneta",
		Short: "Moneta - cryptocurrency payment listener",
		Long:  `Moneta watches wallet daemons for incoming transfers and reconciles them against pending invoices.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
