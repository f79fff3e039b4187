package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"audio-eval/internal/dataset"
	"audio-eval/internal/schemas"
	"audio-eval/internal/session"
)

var tagCmd = &cobra.Command{
	Use:   "tag <experiment> <item> <variant> <good|maybe|bad|none>",
	Short: "Tag a variant in a comparison experiment",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		exp, itemID, variant := args[0], args[1], args[2]
		tag, err := session.ParseTag(args[3])
		if err != nil {
			return err
		}
		ds, it, err := lookupItem(ctx, schemas.ToolComparison, exp, itemID)
		if err != nil {
			return err
		}
		if _, ok := it.Variant(variant); !ok {
			return fmt.Errorf("item %s has no variant %q", itemID, variant)
		}
		c := rt.Comparison(ctx, exp)
		if err := c.SetTag(ctx, itemID, variant, tag); err != nil {
			return err
		}
		s := c.Summary(ds.VariantCount())
		fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s/%s %s (good %d, maybe %d, bad %d)\n",
			itemID, variant, displayTag(tag), s.Good, s.Maybe, s.Bad)
		return nil
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <experiment> <item> <option|none>",
	Short: "Pick the preferred option in an A/B experiment",
	Long: `Pick the preferred option for an item. The option may be given as the
blind label shown by "show" (A, B, "Option A"), or as the variant key when
blind mode is off. "none" withdraws the choice.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		exp, itemID, choice := args[0], args[1], args[2]
		ds, it, err := lookupItem(ctx, schemas.ToolABTest, exp, itemID)
		if err != nil {
			return err
		}
		ab := rt.ABTest(ctx, exp)
		variant := ""
		if !strings.EqualFold(choice, "none") {
			opt, ok := resolveOption(ab.Options(it), choice)
			if !ok {
				return fmt.Errorf("item %s has no option %q", itemID, choice)
			}
			variant = opt.Key
		}
		if err := ab.Select(ctx, itemID, variant); err != nil {
			return err
		}
		s := ab.Summary(len(ds.Items))
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded choice for %s (%d/%d, %s)\n", itemID, s.Completed, s.Total, s.CompletionRate)
		return nil
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <experiment> <item> <variant|code> <1-5|none>",
	Short: "Give a variant an opinion score in a MOS experiment",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		exp, itemID, ref := args[0], args[1], args[2]
		score := 0
		if !strings.EqualFold(args[3], "none") {
			n, err := strconv.Atoi(args[3])
			if err != nil || n < 1 || n > 5 {
				return fmt.Errorf("%w: %q", session.ErrInvalidScore, args[3])
			}
			score = n
		}
		_, it, err := lookupItem(ctx, schemas.ToolMOS, exp, itemID)
		if err != nil {
			return err
		}
		variant, ok := resolveMOSVariant(it, ref)
		if !ok {
			return fmt.Errorf("item %s has no variant %q", itemID, ref)
		}
		m := rt.MOS(ctx, exp)
		if err := m.SetScore(ctx, itemID, variant, score); err != nil {
			return err
		}
		if score == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared score for %s %s\n", itemID, session.Label(variant))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Scored %s %s: %d (%s)\n", itemID, session.Label(variant), score, session.ScaleLabel(score))
		return nil
	},
}

var blindCmd = &cobra.Command{
	Use:   "blind <experiment> [on|off]",
	Short: "Show or change A/B blind mode for this device",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ab := rt.ABTest(ctx, args[0])
		if len(args) == 2 {
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			if err := ab.SetBlindMode(ctx, on); err != nil {
				return err
			}
		}
		state := "off"
		if ab.BlindMode() {
			state = "on"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Blind mode is %s for %s\n", state, args[0])
		return nil
	},
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func displayTag(t session.Tag) string {
	if t == session.TagNone {
		return "untagged"
	}
	return string(t)
}

func lookupItem(ctx context.Context, tool schemas.Tool, experiment, itemID string) (*dataset.Dataset, dataset.Item, error) {
	ds, err := rt.Dataset(ctx, tool, experiment)
	if err != nil {
		return nil, dataset.Item{}, err
	}
	it, ok := ds.Item(itemID)
	if !ok {
		return nil, dataset.Item{}, fmt.Errorf("item %q is not in experiment %q", itemID, experiment)
	}
	return ds, it, nil
}

// resolveOption matches a blind label (A, Option A) or a variant key.
func resolveOption(opts []session.Option, choice string) (session.Option, bool) {
	c := strings.TrimSpace(choice)
	for i, o := range opts {
		blind := session.OptionLabel(i)
		if strings.EqualFold(c, blind) || strings.EqualFold(c, blind[len(blind)-1:]) || c == o.Key {
			return o, true
		}
	}
	return session.Option{}, false
}

// resolveMOSVariant matches a variant key or its displayed code.
func resolveMOSVariant(it dataset.Item, ref string) (string, bool) {
	for _, k := range it.Keys() {
		if k == ref || strings.EqualFold(session.Label(k), ref) {
			return k, true
		}
	}
	return "", false
}
