package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/lessongate-backend/internal/discord"
	pkgdiscord "github.com/angelmondragon/lessongate-backend/pkg/discord"
)

func newRolesCommand(ctx *commandContext) *cobra.Command {
	rolesCmd := &cobra.Command{
		Use:   "roles",
		Short: "Reconcile Discord guild roles",
	}
	rolesCmd.AddCommand(&cobra.Command{
		Use:   "sync <subject>",
		Short: "Refresh one member's guild roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userSvc, err := ctx.users()
			if err != nil {
				return err
			}
			client, err := pkgdiscord.NewClient(ctx.cfg.Discord, nil, ctx.logg)
			if err != nil {
				return err
			}
			roles, err := discord.NewService(discord.ServiceParams{
				Client:           client,
				Users:            userSvc,
				GuildID:          ctx.cfg.Discord.GuildID,
				SubscriberRoleID: ctx.cfg.Discord.SubscriberRoleID,
				Logger:           ctx.logg,
			})
			if err != nil {
				return err
			}
			user, err := roles.SyncMemberRoles(cmd.Context(), operator(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s roles: %s\n", user.Email, orDash(strings.Join(user.DiscordRoles, ", ")))
			return nil
		},
	})
	return rolesCmd
}
