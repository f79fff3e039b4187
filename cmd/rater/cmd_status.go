package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"audio-eval/internal/persist"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active rater, sync mode and records cached on this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		w := cmd.OutOrStdout()

		rater := persist.Anonymous
		if u, ok := rt.Identity.Current(); ok {
			rater = fmt.Sprintf("%s (%s)", u.Name, u.ID)
		}
		mode := "offline"
		if rt.RemoteEnabled {
			mode = "syncing with " + rt.Config.APIURL
		}
		fmt.Fprintf(w, "Rater: %s\nMode:  %s\nCache: %s\n", rater, mode, rt.Config.CachePath)

		for _, prefix := range []string{persist.PrefixComparison, persist.PrefixABTest, persist.PrefixMOS} {
			keys, err := rt.Local.Keys(ctx, prefix+"_")
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintf(w, "  %s\n", strings.TrimPrefix(k, prefix+"_"))
			}
			if len(keys) > 0 {
				fmt.Fprintf(w, "  ^ %d %s record(s)\n", len(keys), prefix)
			}
		}
		return nil
	},
}
