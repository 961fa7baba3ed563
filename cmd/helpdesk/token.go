package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// newTokenCommand mints bearer tokens signed with AUTH_JWT_SECRET for local
// use and smoke tests.
func newTokenCommand() *cobra.Command {
	var (
		id   string
		name string
		role string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			staffRole := domain.StaffRole(strings.ToUpper(role))
			if staffRole != domain.StaffRoleAgent && staffRole != domain.StaffRoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}
			tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expiresAt, err := tm.GenerateToken(domain.Identity{ID: id, Name: name, Role: staffRole})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format("2006-01-02T15:04:05Z"))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Staff member id placed in the token subject")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", string(domain.StaffRoleAgent), "Role: AGENT or ADMIN")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
