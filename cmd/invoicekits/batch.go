package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	"github.com/invoicekits/invoicekits/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Work with batch invoice uploads",
}

var batchProcessCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Upload a CSV or XLSX file and create its invoices immediately",
	Long: `Upload a CSV or XLSX file for a company and process it inline, creating one
invoice per distinct client_name. The batch result is printed as JSON.

Required columns: client_name, item_description, quantity, rate.`,
	Example: `  # Process a CSV, skipping invalid rows
  invoicekits batch process ./january.csv --company 1790000000000000000 --policy skip_rows

  # Process and keep the generated PDFs
  invoicekits batch process ./january.xlsx --company 1790000000000000000 --archive ./january.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchProcess,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchProcessCmd)

	batchProcessCmd.Flags().String("company", "", "company id [REQUIRED]")
	batchProcessCmd.Flags().String("policy", "", "validation policy: reject_file or skip_rows (default from BATCH_VALIDATION_POLICY)")
	batchProcessCmd.Flags().String("archive", "", "write the PDF archive to this path")
	_ = batchProcessCmd.MarkFlagRequired("company")
}

func runBatchProcess(cmd *cobra.Command, args []string) error {
	companyFlag, _ := cmd.Flags().GetString("company")
	policy, _ := cmd.Flags().GetString("policy")
	archivePath, _ := cmd.Flags().GetString("archive")

	companyID, err := snowflake.ParseString(companyFlag)
	if err != nil || companyID == 0 {
		return fmt.Errorf("invalid company id %q", companyFlag)
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var batchSvc batchdomain.Service
	return runOnce(cmd.Context(), func(ctx context.Context) error {
		ctx = companycontext.WithCompanyID(ctx, companyID)

		batch, err := batchSvc.Upload(ctx, batchdomain.UploadRequest{
			Filename: filepath.Base(path),
			Data:     data,
			Policy:   policy,
		})
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}

		result, err := batchSvc.Process(ctx, batch.ID)
		if err != nil {
			return fmt.Errorf("process batch %s: %w", batch.ID, err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("batch %s failed: %s", batch.ID, result.Error)
		}

		if archivePath == "" {
			return nil
		}
		_, archive, err := batchSvc.Archive(ctx, batch.ID.String())
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		return os.WriteFile(archivePath, archive, 0o644)
	}, server.Services, fx.Populate(&batchSvc))
}
