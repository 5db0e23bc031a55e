package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "invoicekits",
	Short: "InvoiceKits invoicing API, scheduler and batch tools",
	Long: `InvoiceKits creates invoices one at a time through the HTTP API or in
bulk from CSV/XLSX uploads, and runs the background jobs that mark invoices
overdue, apply late fees and send payment reminders.

Configuration is read from the environment and an optional .env file.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "invoicekits: %v\n", err)
		os.Exit(1)
	}
}
