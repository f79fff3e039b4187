package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"audio-eval/internal/dataset"
	"audio-eval/internal/persist"
	"audio-eval/internal/schemas"
	"audio-eval/internal/shuffle"
)

// MOSReference is the ground-truth key in MOS datasets. It is scored like
// any other variant but always listed first.
const MOSReference = "GT"

var scaleLabels = map[int]string{
	5: "Excellent",
	4: "Good",
	3: "Fair",
	2: "Poor",
	1: "Bad",
}

// ScaleLabel names a score on the five-point opinion scale.
func ScaleLabel(score int) string { return scaleLabels[score] }

// Scores maps "itemId:variantKey" to a 1-5 score, or nil once withdrawn.
type Scores map[string]*int

func (s Scores) clone() Scores {
	out := make(Scores, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func ScoreKey(itemID, variant string) string { return itemID + ":" + variant }

type VariantMOS struct {
	Variant string  `json:"variant"`
	Count   int     `json:"count"`
	MOS     float64 `json:"mos"`
}

type MOSSummary struct {
	Total          int          `json:"total"`
	Completed      int          `json:"completed"`
	CompletionRate string       `json:"completionRate"`
	MOSByVariant   []VariantMOS `json:"mosByVariant"`
}

type MOSExport struct {
	Experiment string       `json:"experiment"`
	User       string       `json:"user"`
	TestType   schemas.Tool `json:"testType"`
	ExportedAt string       `json:"exportedAt"`
	Scores     Scores       `json:"scores"`
	Summary    MOSSummary   `json:"summary"`
}

// MOS collects an opinion score for every variant of every item. Variants
// are shown under stable codes instead of their keys.
type MOS struct {
	*controller[Scores]
}

func NewMOS(store *persist.Store) *MOS {
	return &MOS{newController(schemas.ToolMOS, store,
		func() Scores { return Scores{} },
		Scores.clone,
	)}
}

// SetScore records score for a variant. Zero withdraws the score.
func (m *MOS) SetScore(ctx context.Context, itemID, variant string, score int) error {
	if score < 0 || score > 5 {
		return fmt.Errorf("%w: got %d", ErrInvalidScore, score)
	}
	key := ScoreKey(itemID, variant)
	return m.mutate(ctx, func(s Scores) (Scores, error) {
		if score == 0 {
			s[key] = nil
			return s, nil
		}
		v := score
		s[key] = &v
		return s, nil
	})
}

func (m *MOS) Score(itemID, variant string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.record[ScoreKey(itemID, variant)]
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (m *MOS) Scores() Scores {
	s, _ := m.snapshot()
	return s
}

// Label is the code a variant is shown under.
func Label(variant string) string { return shuffle.StableID(variant) }

// Order lists an item's variants: the reference first, the rest ordered by
// the first symbol of their code, ties kept in file order.
func (m *MOS) Order(item dataset.Item) []string {
	var (
		hasRef bool
		rest   []string
	)
	for _, k := range item.Keys() {
		if k == MOSReference {
			hasRef = true
			continue
		}
		rest = append(rest, k)
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return shuffle.OrderKey(rest[i]) < shuffle.OrderKey(rest[j])
	})
	if hasRef {
		return append([]string{MOSReference}, rest...)
	}
	return rest
}

// Summary reports progress against total, the number of variants in the
// dataset, and the mean score per variant key sorted by key.
func (m *MOS) Summary(total int) MOSSummary {
	s, _ := m.snapshot()
	return summarizeScores(s, total)
}

func summarizeScores(s Scores, total int) MOSSummary {
	type acc struct{ n, sum int }
	byVariant := map[string]*acc{}
	completed := 0
	for key, v := range s {
		if v == nil {
			continue
		}
		completed++
		parts := strings.Split(key, ":")
		if len(parts) < 2 {
			continue
		}
		a := byVariant[parts[1]]
		if a == nil {
			a = &acc{}
			byVariant[parts[1]] = a
		}
		a.n++
		a.sum += *v
	}

	out := MOSSummary{
		Total:          total,
		Completed:      completed,
		CompletionRate: completionRate(completed, total),
		MOSByVariant:   make([]VariantMOS, 0, len(byVariant)),
	}
	for variant, a := range byVariant {
		out.MOSByVariant = append(out.MOSByVariant, VariantMOS{
			Variant: variant,
			Count:   a.n,
			MOS:     float64(a.sum) / float64(a.n),
		})
	}
	sort.Slice(out.MOSByVariant, func(i, j int) bool {
		return out.MOSByVariant[i].Variant < out.MOSByVariant[j].Variant
	})
	return out
}

func (m *MOS) Export(total int, now time.Time) MOSExport {
	s, sc := m.snapshot()
	return MOSExport{
		Experiment: sc.Experiment,
		User:       raterOrAnonymous(sc.RaterID),
		TestType:   schemas.ToolMOS,
		ExportedAt: exportTime(now),
		Scores:     s,
		Summary:    summarizeScores(s, total),
	}
}

func (m *MOS) Clear(ctx context.Context, confirm Confirmer) (bool, error) {
	return m.controller.Clear(ctx, confirm, "Are you sure you want to clear all scores? This cannot be undone.")
}
