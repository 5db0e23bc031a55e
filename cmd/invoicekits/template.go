package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/invoicekits/invoicekits/internal/batch/csvimport"
	"github.com/spf13/cobra"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Write the batch upload template",
	Example: `  invoicekits template > invoices.csv
  invoicekits template --format xlsx --output invoices.xlsx`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		var (
			data []byte
			err  error
		)
		switch strings.ToLower(strings.TrimSpace(format)) {
		case "csv":
			data, err = csvimport.TemplateCSV()
		case "xlsx":
			if output == "" {
				return fmt.Errorf("--output is required for xlsx")
			}
			data, err = csvimport.TemplateXLSX()
		default:
			return fmt.Errorf("unknown format %q, use csv or xlsx", format)
		}
		if err != nil {
			return err
		}

		if output == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return os.WriteFile(output, data, 0o644)
	},
}

func init() {
	rootCmd.AddCommand(templateCmd)

	templateCmd.Flags().String("format", "csv", "csv or xlsx")
	templateCmd.Flags().StringP("output", "o", "", "file to write (default stdout)")
}
