package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
	"github.com/dgnsrekt/overlay-relay/internal/tenant"
)

func tenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Inspect and manage the configured tenant registry",
	}
	cmd.AddCommand(tenantsListCmd())
	cmd.AddCommand(tenantsPutCmd())
	cmd.AddCommand(tenantsDeleteCmd())
	return cmd
}

func tenantsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every tenant known to the configured source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTenants(cmd.Context(), func(reg relay.TenantRegistry) error {
				lister, ok := reg.(tenant.Lister)
				if !ok {
					return fmt.Errorf("tenant source %s cannot list tenants", cfg.Tenants.Source)
				}
				list, err := lister.List(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tUSERNAME\tCODE\tACTIVE")
				for _, t := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", t.ID, t.Username, t.Code, t.Active)
				}
				return w.Flush()
			})
		},
	}
}

func tenantsPutCmd() *cobra.Command {
	var t relay.Tenant

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Create or update a tenant (sqlite and redis sources)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if t.ID == "" && t.Username == "" {
				return errors.New("--id or --username is required")
			}
			return withTenants(cmd.Context(), func(reg relay.TenantRegistry) error {
				ctx := cmd.Context()
				switch r := reg.(type) {
				case *tenant.SQLiteRegistry:
					return r.Upsert(ctx, t)
				case *tenant.RedisRegistry:
					return r.Put(ctx, t)
				default:
					return fmt.Errorf("tenant source %s is read-only", cfg.Tenants.Source)
				}
			})
		},
	}

	cmd.Flags().StringVar(&t.ID, "id", "", "tenant id (defaults to username)")
	cmd.Flags().StringVar(&t.Username, "username", "", "tenant username")
	cmd.Flags().StringVar(&t.Code, "code", "", "live code viewers join with")
	cmd.Flags().BoolVar(&t.Active, "active", true, "whether the tenant accepts joins")
	return cmd
}

func tenantsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a tenant (sqlite source)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTenants(cmd.Context(), func(reg relay.TenantRegistry) error {
				r, ok := reg.(*tenant.SQLiteRegistry)
				if !ok {
					return fmt.Errorf("tenant source %s does not support delete", cfg.Tenants.Source)
				}
				return r.Delete(cmd.Context(), args[0])
			})
		},
	}
}

func withTenants(ctx context.Context, fn func(relay.TenantRegistry) error) error {
	source, err := openTenants(ctx, cfg.Tenants, logger)
	if err != nil {
		return err
	}
	defer source.close()
	return fn(source.registry)
}
