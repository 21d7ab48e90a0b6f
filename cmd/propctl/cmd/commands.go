package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"propdesk/internal/app"
	"propdesk/internal/auth"
	"propdesk/internal/plans"
	"propdesk/internal/types"

	"github.com/spf13/cobra"
)

func newTokenCmd(load Loader) *cobra.Command {
	var user, role, email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token",
		Long:  `Sign a JWT with JWT_ISSUER and JWT_SECRET, for local testing and operator scripts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			r := types.UserRole(strings.ToLower(strings.TrimSpace(role)))
			if r != types.RoleUser && r != types.RoleAdmin {
				return fmt.Errorf("invalid role %q: use user or admin", role)
			}
			tok, err := auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL).Sign(user, r, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "subject (user id)")
	cmd.Flags().StringVar(&role, "role", string(types.RoleUser), "user or admin")
	cmd.Flags().StringVar(&email, "email", "", "optional email claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newMigrateCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply pending migrations. Postgres migrations are tracked in schema_migrations;
the SQLite schema is created when the file is opened.`,
		RunE: withApp(load, func(cmd *cobra.Command, a *app.App) error {
			fmt.Fprintf(cmd.OutOrStdout(), "store %s is up to date\n", a.Config.StoreDriver)
			return nil
		}),
	}
}

func newResetDailyCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-daily",
		Short: "Start a new trading day for every active challenge",
		RunE: withApp(load, func(cmd *cobra.Command, a *app.App) error {
			sum, err := a.Challenges.ResetAllDaily(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d challenges, %d failed\n", sum.Reset, sum.Failed)
			return err
		}),
	}
}

func newSeedDemoCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-demo",
		Short: "Replace the demo traders' challenges",
		RunE: withApp(load, func(cmd *cobra.Command, a *app.App) error {
			created, err := a.Challenges.SeedDemo(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s%%\n", c.ID, c.DisplayName, c.Status, c.TotalPnLPct.StringFixed(2))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d challenges\n", len(created))
			return nil
		}),
	}
}

func newPlansCmd(load Loader) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Print the plan catalog",
		Long:  `Print the active plan catalog. The yaml output can be used as PLANS_FILE.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			catalog, err := plans.Load(cfg.PlansFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(catalog.List())
			case "yaml":
				raw, err := catalog.Marshal()
				if err != nil {
					return err
				}
				_, err = out.Write(raw)
				return err
			default:
				return fmt.Errorf("invalid output %q: use json or yaml", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "json or yaml")
	return cmd
}
