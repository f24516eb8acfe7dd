package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/careadmin/careadmin/internal/domain/tenant"
	"github.com/careadmin/careadmin/internal/platform/auth"
)

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a tenant, its owner invitation and default feature flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in tenant.ProvisionInput
			in.Name, _ = cmd.Flags().GetString("name")
			in.Slug, _ = cmd.Flags().GetString("slug")
			in.OwnerEmail, _ = cmd.Flags().GetString("owner-email")
			in.Plan, _ = cmd.Flags().GetString("plan")

			cfg, err := loadDatabaseConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := auth.WithIdentity(cmd.Context(), "cli", "", []string{auth.RolePlatformAdmin})
			out, err := a.tenants.Provision(ctx, in)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("slug", "", "URL-safe identifier")
	createCmd.Flags().String("owner-email", "", "Email the owner invitation is issued to")
	createCmd.Flags().String("plan", "", "trial, standard or enterprise")
	for _, f := range []string{"name", "slug", "owner-email"} {
		if err := createCmd.MarkFlagRequired(f); err != nil {
			panic(fmt.Sprintf("mark %s required: %v", f, err))
		}
	}

	cmd.AddCommand(createCmd)
	return cmd
}
