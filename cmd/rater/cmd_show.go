package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"audio-eval/internal/dataset"
	"audio-eval/internal/schemas"
	"audio-eval/internal/session"
)

func parseTool(s string) (schemas.Tool, error) {
	t := schemas.Tool(strings.ToLower(s))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tool %q (want comparison, abtest or mos)", s)
	}
	return t, nil
}

var showCmd = &cobra.Command{
	Use:   "show <comparison|abtest|mos> <experiment>",
	Short: "List items in presentation order with the current judgments",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tool, err := parseTool(args[0])
		if err != nil {
			return err
		}
		ds, err := rt.Dataset(ctx, tool, args[1])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		switch tool {
		case schemas.ToolComparison:
			return showComparison(ctx, w, ds)
		case schemas.ToolABTest:
			return showABTest(ctx, w, ds)
		default:
			return showMOS(ctx, w, ds)
		}
	},
}

// appendItem adds one row per variant, naming the item on its first row only.
func appendItem(table *tablewriter.Table, n int, id string, rows [][]string) error {
	for i, r := range rows {
		head := ""
		if i == 0 {
			head = fmt.Sprintf("#%d %s", n, id)
		}
		if err := table.Append(append([]string{head}, r...)); err != nil {
			return err
		}
	}
	return nil
}

func showComparison(ctx context.Context, w io.Writer, ds *dataset.Dataset) error {
	c := rt.Comparison(ctx, ds.Experiment)
	table := newTable(w, "ITEM", "VARIANT", "TAG", "")
	for i, it := range ds.Items {
		var rows [][]string
		for _, k := range c.Order(it) {
			ref := ""
			if k == session.ReferenceVariant {
				ref = "reference"
			}
			rows = append(rows, []string{k, displayTag(c.Tag(it.ID, k)), ref})
		}
		if err := appendItem(table, i+1, it.ID, rows); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	s := c.Summary(ds.VariantCount())
	fmt.Fprintf(w, "tagged %d/%d  %s  good %d  maybe %d  bad %d\n",
		s.Total, ds.VariantCount(), s.CompletionRate, s.Good, s.Maybe, s.Bad)
	return nil
}

func showABTest(ctx context.Context, w io.Writer, ds *dataset.Dataset) error {
	ab := rt.ABTest(ctx, ds.Experiment)
	table := newTable(w, "ITEM", "OPTION", "")
	for i, it := range ds.Items {
		chosen, ok := ab.Selected(it.ID)
		var rows [][]string
		for _, o := range ab.Options(it) {
			mark := ""
			if ok && o.Key == chosen {
				mark = "selected"
			}
			rows = append(rows, []string{o.Label, mark})
		}
		if err := appendItem(table, i+1, it.ID, rows); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	s := ab.Summary(len(ds.Items))
	fmt.Fprintf(w, "completed %d/%d  %s\n", s.Completed, s.Total, s.CompletionRate)
	return nil
}

func showMOS(ctx context.Context, w io.Writer, ds *dataset.Dataset) error {
	m := rt.MOS(ctx, ds.Experiment)
	table := newTable(w, "ITEM", "SAMPLE", "SCORE")
	for i, it := range ds.Items {
		var rows [][]string
		for _, k := range m.Order(it) {
			label := session.Label(k)
			if k == session.MOSReference {
				label = "GT (reference)"
			}
			score := "-"
			if n, ok := m.Score(it.ID, k); ok {
				score = fmt.Sprintf("%d %s", n, session.ScaleLabel(n))
			}
			rows = append(rows, []string{label, score})
		}
		if err := appendItem(table, i+1, it.ID, rows); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	s := m.Summary(ds.VariantCount())
	fmt.Fprintf(w, "completed %d/%d  %s\n", s.Completed, s.Total, s.CompletionRate)
	return nil
}

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export <comparison|abtest|mos> <experiment>",
	Short: "Write the current record and its summary to a JSON file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tool, err := parseTool(args[0])
		if err != nil {
			return err
		}
		exp := args[1]
		now := time.Now()

		ds, err := rt.Dataset(ctx, tool, exp)
		if err != nil {
			return err
		}
		var out any
		switch tool {
		case schemas.ToolComparison:
			out = rt.Comparison(ctx, exp).Export(ds.VariantCount(), now)
		case schemas.ToolABTest:
			out = rt.ABTest(ctx, exp).Export(len(ds.Items), now)
		case schemas.ToolMOS:
			out = rt.MOS(ctx, exp).Export(ds.VariantCount(), now)
		}

		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		path := filepath.Join(exportDir, session.Filename(tool, exp, now))
		if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var assumeYes bool

var clearCmd = &cobra.Command{
	Use:   "clear <comparison|abtest|mos> <experiment>",
	Short: "Erase every judgment in the current record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tool, err := parseTool(args[0])
		if err != nil {
			return err
		}
		confirm := promptConfirmer{in: cmd.InOrStdin(), out: cmd.OutOrStdout(), yes: assumeYes}

		var cleared bool
		switch tool {
		case schemas.ToolComparison:
			cleared, err = rt.Comparison(ctx, args[1]).Clear(ctx, confirm)
		case schemas.ToolABTest:
			cleared, err = rt.ABTest(ctx, args[1]).Clear(ctx, confirm)
		case schemas.ToolMOS:
			cleared, err = rt.MOS(ctx, args[1]).Clear(ctx, confirm)
		}
		if err != nil {
			return err
		}
		if cleared {
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing changed")
		}
		return nil
	},
}

// promptConfirmer asks on the terminal; yes skips the question.
type promptConfirmer struct {
	in  io.Reader
	out io.Writer
	yes bool
}

func (p promptConfirmer) Confirm(_ context.Context, prompt string) bool {
	if p.yes {
		return true
	}
	fmt.Fprintf(p.out, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(p.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", ".", "directory to write the export file into")
	clearCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
}
