package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/lessongate-backend/internal/users"
	"github.com/angelmondragon/lessongate-backend/pkg/db/models"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and manage members",
	}
	usersCmd.AddCommand(newUsersShowCommand(ctx))
	usersCmd.AddCommand(newUsersListCommand(ctx))
	usersCmd.AddCommand(newUsersPromoteCommand(ctx))
	return usersCmd
}

func newUsersShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <subject|email>",
		Short: "Show one member record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.users()
			if err != nil {
				return err
			}
			user, err := findUser(cmd, svc, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderUser(user))
			return nil
		},
	}
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	var status, email string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.users()
			if err != nil {
				return err
			}
			filter := users.ListFilter{Email: email, Limit: limit}
			if status != "" {
				parsed, err := enums.ParseSubscriptionStatus(status)
				if err != nil {
					return err
				}
				filter.Status = &parsed
			}
			page, err := svc.List(cmd.Context(), operator(), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(page.Users) == 0 {
				fmt.Fprintln(out, "No users")
				return nil
			}
			rows := make([][]string, 0, len(page.Users))
			for i := range page.Users {
				u := &page.Users[i]
				rows = append(rows, []string{
					u.Email,
					orDash(u.Subject()),
					string(u.SubscriptionStatus),
					strconv.FormatBool(u.IsAdmin),
					strconv.Itoa(len(u.DiscordRoles)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Email", "Subject", "Status", "Admin", "Roles"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			if page.NextCursor != "" {
				fmt.Fprintf(out, "Next cursor: %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by subscription status")
	cmd.Flags().StringVar(&email, "email", "", "Filter by email")
	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	return cmd
}

func newUsersPromoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <subject|email>",
		Short: "Grant admin to a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.users()
			if err != nil {
				return err
			}
			user, err := svc.Promote(cmd.Context(), operator(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now an admin\n", user.Email)
			return nil
		},
	}
}

func findUser(cmd *cobra.Command, svc *users.Service, key string) (*models.User, error) {
	key = strings.TrimSpace(key)
	user, err := svc.FindBySubject(cmd.Context(), key)
	if err != nil {
		return nil, err
	}
	if user == nil && strings.Contains(key, "@") {
		if user, err = svc.FindByEmail(cmd.Context(), key); err != nil {
			return nil, err
		}
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no user matches %q", key))
	}
	return user, nil
}

func renderUser(u *models.User) string {
	plan := ""
	if u.SubscriptionPlan != nil {
		plan = *u.SubscriptionPlan
	}
	eventAt := ""
	if u.SubscriptionEventAt != nil {
		eventAt = u.SubscriptionEventAt.UTC().Format(time.RFC3339)
	}
	rows := [][]string{
		{"ID", u.ID.String()},
		{"Email", u.Email},
		{"Name", orDash(u.Name)},
		{"Subject", orDash(u.Subject())},
		{"Discord", orDash(deref(u.DiscordID))},
		{"Roles", orDash(strings.Join(u.DiscordRoles, ", "))},
		{"Stripe customer", orDash(deref(u.StripeCustomerID))},
		{"Subscription", string(u.SubscriptionStatus)},
		{"Plan", orDash(plan)},
		{"Last billing event", orDash(eventAt)},
		{"Admin", strconv.FormatBool(u.IsAdmin)},
		{"Created", u.CreatedAt.UTC().Format(time.RFC3339)},
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
