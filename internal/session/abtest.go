package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"audio-eval/internal/dataset"
	"audio-eval/internal/persist"
	"audio-eval/internal/schemas"
)

// Selections maps item id to the chosen variant key, or nil when the choice
// was withdrawn.
type Selections map[string]*string

func (s Selections) clone() Selections {
	out := make(Selections, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

type ABTestSummary struct {
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	CompletionRate string `json:"completionRate"`
}

type ABTestExport struct {
	Experiment string        `json:"experiment"`
	User       string        `json:"user"`
	TestType   schemas.Tool  `json:"testType"`
	ExportedAt string        `json:"exportedAt"`
	BlindMode  bool          `json:"blindMode"`
	Selections Selections    `json:"selections"`
	Summary    ABTestSummary `json:"summary"`
}

// Option is one selectable variant as shown to the rater.
type Option struct {
	Key   string
	Label string
}

// ABTest records one preferred variant per item. Variant labels are hidden
// behind "Option A", "Option B", ... while blind mode is on.
type ABTest struct {
	*controller[Selections]
	blind bool
}

func NewABTest(store *persist.Store) *ABTest {
	a := &ABTest{blind: true}
	a.controller = newController(schemas.ToolABTest, store,
		func() Selections { return Selections{} },
		Selections.clone,
	)
	a.prepare = a.loadBlindMode
	return a
}

func blindModeKey(sc persist.Scope) string {
	return persist.StorageKey(persist.PrefixBlindMode, sc.Experiment, sc.RaterID)
}

// loadBlindMode reads the local-only preference; it defaults to on.
func (a *ABTest) loadBlindMode(ctx context.Context, sc persist.Scope) func() {
	blind := true
	b, ok, err := a.store.Local().Get(ctx, blindModeKey(sc))
	switch {
	case err != nil:
		clog.FromContext(ctx).Warnf("read blind mode: %v", err)
	case ok:
		if err := json.Unmarshal(b, &blind); err != nil {
			clog.FromContext(ctx).Warnf("ignoring malformed blind mode preference: %v", err)
			blind = true
		}
	}
	return func() { a.blind = blind }
}

func (a *ABTest) BlindMode() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blind
}

// SetBlindMode changes and stores the preference for the active context.
// It never leaves the device.
func (a *ABTest) SetBlindMode(ctx context.Context, on bool) error {
	a.mu.Lock()
	if a.state != Ready {
		a.mu.Unlock()
		return ErrNotReady
	}
	a.blind = on
	sc := a.scope
	a.mu.Unlock()

	b, _ := json.Marshal(on)
	if err := a.store.Local().Set(ctx, blindModeKey(sc), b); err != nil {
		clog.FromContext(ctx).Errorf("save blind mode: %v", err)
	}
	return nil
}

// Select records variant as the preferred one for itemID. An empty variant
// withdraws the choice.
func (a *ABTest) Select(ctx context.Context, itemID, variant string) error {
	if variant == ReferenceVariant {
		return ErrNotSelectable
	}
	return a.mutate(ctx, func(s Selections) (Selections, error) {
		if variant == "" {
			s[itemID] = nil
			return s, nil
		}
		v := variant
		s[itemID] = &v
		return s, nil
	})
}

// Selected returns the chosen variant for itemID.
func (a *ABTest) Selected(itemID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.record[itemID]
	if v == nil {
		return "", false
	}
	return *v, true
}

func (a *ABTest) Selections() Selections {
	s, _ := a.snapshot()
	return s
}

// Options lists an item's selectable variants in the item's seeded shuffle
// order, labelled for the current blind mode.
func (a *ABTest) Options(item dataset.Item) []Option {
	keys := referenceFirst(item, ReferenceVariant)
	if len(keys) > 0 && keys[0] == ReferenceVariant {
		keys = keys[1:]
	}
	blind := a.BlindMode()
	out := make([]Option, len(keys))
	for i, k := range keys {
		label := k
		if blind {
			label = OptionLabel(i)
		}
		out[i] = Option{Key: k, Label: label}
	}
	return out
}

// OptionLabel is the blind label for the i-th option.
func OptionLabel(i int) string {
	return fmt.Sprintf("Option %c", rune('A'+i))
}

// Summary counts completed items against total, the number of items in the
// dataset.
func (a *ABTest) Summary(total int) ABTestSummary {
	s, _ := a.snapshot()
	return summarizeSelections(s, total)
}

func summarizeSelections(s Selections, total int) ABTestSummary {
	completed := 0
	for _, v := range s {
		if v != nil {
			completed++
		}
	}
	return ABTestSummary{Total: total, Completed: completed, CompletionRate: completionRate(completed, total)}
}

func (a *ABTest) Export(total int, now time.Time) ABTestExport {
	s, sc := a.snapshot()
	return ABTestExport{
		Experiment: sc.Experiment,
		User:       raterOrAnonymous(sc.RaterID),
		TestType:   schemas.ToolABTest,
		ExportedAt: exportTime(now),
		BlindMode:  a.BlindMode(),
		Selections: s,
		Summary:    summarizeSelections(s, total),
	}
}

func (a *ABTest) Clear(ctx context.Context, confirm Confirmer) (bool, error) {
	return a.controller.Clear(ctx, confirm, "Are you sure you want to clear all selections? This cannot be undone.")
}
