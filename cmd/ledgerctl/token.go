package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/storefront/backend/internal/infrastructure/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject     string
		username    string
		permissions []string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator bearer token signed with the configured secret",
		Example: `  ledgerctl token --subject ops-1 --perm settlement:read --perm settlement:write
  ledgerctl token --subject finance --perm settlement:settle --perm ledger:export --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.JWT.Secret == "" {
				return fmt.Errorf("jwt.secret is not configured")
			}
			token, expires, err := auth.NewJWTService(cfg.JWT).Issue(auth.IssueInput{
				Subject:     subject,
				Username:    username,
				Permissions: permissions,
				TTL:         ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (operator id)")
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringSliceVar(&permissions, "perm", []string{auth.PermSettlementRead},
		"granted permission, repeatable ("+auth.PermSettlementRead+", "+auth.PermSettlementWrite+", "+
			auth.PermSettlementSettle+", "+auth.PermLedgerExport+", "+auth.Wildcard+")")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
