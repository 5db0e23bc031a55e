package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/invoicekits/invoicekits/internal/apikey/domain"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	"github.com/invoicekits/invoicekits/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue an API key for a company",
	Long: `Issue an API key for a company. The key is printed once and only its hash
is stored.`,
	Example: `  invoicekits apikey create --company 1790000000000000000 --name ci --expires-in 720h`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		companyFlag, _ := cmd.Flags().GetString("company")
		name, _ := cmd.Flags().GetString("name")
		expiresIn, _ := cmd.Flags().GetDuration("expires-in")

		companyID, err := snowflake.ParseString(companyFlag)
		if err != nil || companyID == 0 {
			return fmt.Errorf("invalid company id %q", companyFlag)
		}

		req := apikeydomain.CreateRequest{Name: name}
		if expiresIn > 0 {
			expiresAt := time.Now().UTC().Add(expiresIn)
			req.ExpiresAt = &expiresAt
		}

		var apiKeySvc apikeydomain.Service
		return runOnce(cmd.Context(), func(ctx context.Context) error {
			secret, err := apiKeySvc.Create(companycontext.WithCompanyID(ctx, companyID), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key_id:  %s\napi_key: %s\n", secret.KeyID, secret.APIKey)
			return nil
		}, server.Services, fx.Populate(&apiKeySvc))
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd)

	apikeyCreateCmd.Flags().String("company", "", "company id [REQUIRED]")
	apikeyCreateCmd.Flags().String("name", "", "key name [REQUIRED]")
	apikeyCreateCmd.Flags().Duration("expires-in", 0, "expire the key after this duration (default never)")
	_ = apikeyCreateCmd.MarkFlagRequired("company")
	_ = apikeyCreateCmd.MarkFlagRequired("name")
}
