package main

import (
	"context"
	"fmt"

	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	"github.com/invoicekits/invoicekits/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var companyCmd = &cobra.Command{
	Use:   "company",
	Short: "Manage companies",
}

var companyCreateCmd = &cobra.Command{
	Use:     "create",
	Short:   "Create a company and its account",
	Example: `  invoicekits company create --name "Acme Studio" --email billing@acme.example --tier professional`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		tier, _ := cmd.Flags().GetString("tier")
		prefix, _ := cmd.Flags().GetString("prefix")

		var companySvc companydomain.Service
		return runOnce(cmd.Context(), func(ctx context.Context) error {
			company, err := companySvc.Create(ctx, companydomain.CreateRequest{
				Name:          name,
				Email:         email,
				Tier:          tier,
				InvoicePrefix: prefix,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "company %s created (slug %s)\n", company.ID, company.Slug)
			return nil
		}, server.Services, fx.Populate(&companySvc))
	},
}

func init() {
	rootCmd.AddCommand(companyCmd)
	companyCmd.AddCommand(companyCreateCmd)

	companyCreateCmd.Flags().String("name", "", "company name [REQUIRED]")
	companyCreateCmd.Flags().String("email", "", "sender address for notices")
	companyCreateCmd.Flags().String("tier", "", "plan tier: free, starter, professional or business")
	companyCreateCmd.Flags().String("prefix", "", "invoice number prefix (default INV-)")
	_ = companyCreateCmd.MarkFlagRequired("name")
}
