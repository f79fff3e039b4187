package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"audio-eval/internal/persist"
)

var loginCmd = &cobra.Command{
	Use:   "login <id> [name]",
	Short: "Sign in as a rater, creating it on first use",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		u, ok := rt.Identity.Login(cmd.Context(), args[0], name)
		if !ok {
			return fmt.Errorf("rater id must not be empty or %q", persist.Anonymous)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", u.Name, u.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Continue anonymously",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt.Identity.Logout(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch <id>",
	Short: "Switch to a rater already on this device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !rt.Identity.SwitchUser(cmd.Context(), args[0]) {
			return fmt.Errorf("unknown rater %q; use login to create it", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Switched to %s\n", args[0])
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List known raters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !rt.Identity.HasUsers() {
			fmt.Fprintln(cmd.OutOrStdout(), "No raters yet; use login to create one")
			return nil
		}
		current := rt.Identity.CurrentID()
		table := newTable(cmd.OutOrStdout(), "", "ID", "NAME", "CREATED")
		for _, u := range rt.Identity.Users() {
			mark := ""
			if u.ID == current {
				mark = "*"
			}
			if err := table.Append([]string{mark, u.ID, u.Name, u.CreatedAt}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
		if !rt.RemoteEnabled {
			fmt.Fprintln(cmd.OutOrStdout(), "(offline: showing raters cached on this device)")
		}
		return nil
	},
}
