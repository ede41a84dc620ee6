package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hireline/internal/app"
	"hireline/internal/config"
	"hireline/internal/db"
	"hireline/internal/domain"
	"hireline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "hl",
	Short: "Hireline CLI",
	Long: `Hireline moves candidates from application to employment.
Core concepts:
- Pipeline: every candidate has one of 13 statuses; only listed edges are allowed and every move is recorded.
- Onboarding link: entering onboarding issues a single-use, expiring link the candidate opens without an account.
- Documents: KTP, KK and SKCK uploads; the KTP is run through OCR and gated on confidence before it prefills the form.
- Declaration: the candidate acknowledges every ketentuan and sanksi item plus the final statement before submitting.
- HRD: reviewed forms go to HRD, who approve (candidate hired, contract draft requested) or reject with a comment.
- Workspace: the .hireline directory holds the database and uploaded documents; hireline.yml holds tenant config.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HIRELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("tenant", "", "tenant id (overrides hireline.yml)")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringSlice("roles", []string{"admin"}, "roles of the local actor")
	rootCmd.PersistentFlags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	for _, name := range []string{"workspace", "json", "tenant", "actor-id", "roles", "jwt-secret"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(candidateCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(onboardingCmd())
	rootCmd.AddCommand(formCmd())
	rootCmd.AddCommand(hrdCmd())
	rootCmd.AddCommand(eventsCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create hireline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			tenant := viper.GetString("tenant")
			if tenant == "" {
				return fmt.Errorf("--tenant required")
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(tenant)), 0o644); err != nil {
				return err
			}
			rt, err := app.Open(cmd.Context(), app.Options{Workspace: workspace, TenantID: tenant})
			if err != nil {
				return err
			}
			defer rt.Close()
			fmt.Printf("Initialized tenant %s in %s\n", tenant, workspace)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing hireline.yml")
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect tenant config"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate hireline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			fmt.Printf("config ok (tenant %s)\n", cfg.Tenant.ID)
			return nil
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "checklist",
		Short: "Print the declaration checklist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, _ domain.Actor) error {
				return printJSON(rt.Config.Checklist())
			})
		},
	})
	return cfgCmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("HIRELINE_JWT_SECRET is required")
			}
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			tenant := viper.GetString("tenant")
			if tenant == "" {
				cfg, err := config.LoadOptional(viper.GetString("workspace"), "")
				if err != nil {
					return err
				}
				tenant = cfg.Tenant.ID
			}
			tok, err := server.SignToken(secret, subject, tenant, viper.GetStringSlice("roles"), ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (defaults to --actor-id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

// withRuntime opens the workspace and resolves the local actor from --actor-id and --roles.
func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime, domain.Actor) error) error {
	rt, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		TenantID:  viper.GetString("tenant"),
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	actor := domain.Actor{
		TenantID:    rt.Config.Tenant.ID,
		UserID:      viper.GetString("actor-id"),
		Permissions: rt.Config.RolePermissions(viper.GetStringSlice("roles")),
	}
	return fn(ctx, rt, actor)
}

func printJSONOrTable(v any, table func()) error {
	if viper.GetBool("json") || table == nil {
		return printJSON(v)
	}
	table()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
