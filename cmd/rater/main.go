// Command rater drives the comparison, A/B and MOS sessions from a terminal,
// using the same local cache and API sync as the browser client.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"audio-eval/internal/app"
	"audio-eval/internal/config"
)

var (
	verbose bool
	rt      *app.App
)

var rootCmd = &cobra.Command{
	Use:           "rater",
	Short:         "Rate audio variants offline-first, syncing to the progress API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		lvl := slog.LevelWarn
		if verbose {
			lvl = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))

		ctx := cmd.Context()
		cfg, err := config.LoadRater(ctx, nil)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a, err := app.Open(ctx, cfg)
		if err != nil {
			return err
		}
		rt = a
		clog.FromContext(ctx).Debugf("cache=%s api=%s remote=%t", cfg.CachePath, cfg.APIURL, a.RemoteEnabled)
		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if rt == nil {
			return nil
		}
		return rt.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log sync and fallback details to stderr")
	rootCmd.AddCommand(
		loginCmd, logoutCmd, switchCmd, usersCmd,
		tagCmd, selectCmd, scoreCmd, blindCmd,
		showCmd, exportCmd, clearCmd, statusCmd,
	)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
