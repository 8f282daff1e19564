package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"studytracker-backend/internal/middleware"
	"studytracker-backend/internal/models"
	"studytracker-backend/internal/services"
)

var (
	listPendingOnly bool
	tokenTTL        time.Duration
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users and manage approval",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: withIdentity(func(cmd *cobra.Command, svc *services.IdentityService, _ []string) error {
		users, err := svc.ListUsers(cmd.Context(), listPendingOnly)
		if err != nil {
			return err
		}
		printUsers(cmd.OutOrStdout(), users)
		return nil
	}),
}

var usersApproveCmd = &cobra.Command{
	Use:   "approve <email>",
	Short: "Approve a pending user",
	Args:  cobra.ExactArgs(1),
	RunE: withIdentity(func(cmd *cobra.Command, svc *services.IdentityService, args []string) error {
		return updateByEmail(cmd, svc, args[0], svc.Approve)
	}),
}

var usersRevokeCmd = &cobra.Command{
	Use:   "revoke <email>",
	Short: "Revoke a user's approval",
	Args:  cobra.ExactArgs(1),
	RunE: withIdentity(func(cmd *cobra.Command, svc *services.IdentityService, args []string) error {
		return updateByEmail(cmd, svc, args[0], svc.Revoke)
	}),
}

var usersMakeAdminCmd = &cobra.Command{
	Use:   "make-admin <email>",
	Short: "Grant admin rights",
	Args:  cobra.ExactArgs(1),
	RunE: withIdentity(func(cmd *cobra.Command, svc *services.IdentityService, args []string) error {
		return updateByEmail(cmd, svc, args[0], func(ctx context.Context, id int64) (*models.User, error) {
			return svc.SetAdmin(ctx, id, true)
		})
	}),
}

// usersTokenCmd signs a bearer token for an existing user. Useful for local
// testing without the identity provider.
var usersTokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Issue a bearer token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := store.GetUserByEmail(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("user %s: %w", args[0], err)
		}

		auth := middleware.NewJWTAuth(cfg.JWTSecret, nil)
		token, err := auth.IssueToken(models.Identity{
			Subject: user.ExternalID,
			Email:   user.Email,
			Name:    user.Name,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	usersListCmd.Flags().BoolVar(&listPendingOnly, "pending", false, "Only list users awaiting approval")
	usersTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")

	usersCmd.AddCommand(usersListCmd, usersApproveCmd, usersRevokeCmd, usersMakeAdminCmd, usersTokenCmd)
	rootCmd.AddCommand(usersCmd)
}

func withIdentity(fn func(cmd *cobra.Command, svc *services.IdentityService, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		return fn(cmd, services.NewIdentityService(store, cfg.IdentityCacheSize, cfg.IdentityCacheTTL, logger), args)
	}
}

func updateByEmail(cmd *cobra.Command, svc *services.IdentityService, email string, apply func(context.Context, int64) (*models.User, error)) error {
	user, err := svc.UserByEmail(cmd.Context(), email)
	if err != nil {
		return fmt.Errorf("%s: %w", email, err)
	}
	updated, err := apply(cmd.Context(), user.ID)
	if err != nil {
		return err
	}
	color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(), "✓ %s\n", updated.Email)
	printUsers(cmd.OutOrStdout(), []models.User{*updated})
	return nil
}

func printUsers(out io.Writer, users []models.User) {
	if len(users) == 0 {
		color.New(color.FgYellow).Fprintln(out, "No users found")
		return
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprintf(out, "%-6s %-32s %-24s %-10s %-6s %s\n", "ID", "EMAIL", "NAME", "STATUS", "ADMIN", "REQUESTED")
	for _, u := range users {
		status := yellow.Sprintf("%-10s", "pending")
		if u.IsApproved {
			status = green.Sprintf("%-10s", "approved")
		}
		admin := ""
		if u.IsAdmin {
			admin = "yes"
		}
		fmt.Fprintf(out, "%-6d %-32s %-24s %s %-6s %s\n",
			u.ID, u.Email, u.Name, status, admin, services.FormatTime(u.ApprovalRequestedAt))
	}
}
