package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"audio-eval/internal/dataset"
	"audio-eval/internal/persist"
	"audio-eval/internal/schemas"
	"audio-eval/internal/shuffle"
)

// ReferenceVariant is the ground-truth key in comparison and A/B datasets.
const ReferenceVariant = "melody_GT"

type Tag string

const (
	TagNone  Tag = ""
	TagGood  Tag = "good"
	TagMaybe Tag = "maybe"
	TagBad   Tag = "bad"
)

// ParseTag accepts good, maybe, bad, or none/empty to remove a tag.
func ParseTag(s string) (Tag, error) {
	switch t := Tag(strings.ToLower(strings.TrimSpace(s))); t {
	case TagGood, TagMaybe, TagBad, TagNone:
		return t, nil
	case "none":
		return TagNone, nil
	}
	return TagNone, fmt.Errorf("%w: %q", ErrInvalidTag, s)
}

// Tags maps item id to variant key to tag. Items with no tags are absent.
type Tags map[string]map[string]Tag

func (t Tags) clone() Tags {
	out := make(Tags, len(t))
	for item, vs := range t {
		inner := make(map[string]Tag, len(vs))
		for k, v := range vs {
			inner[k] = v
		}
		out[item] = inner
	}
	return out
}

// ComparisonSummary counts tagged variants. CompletionRate is measured
// against every variant in the dataset.
type ComparisonSummary struct {
	Total          int    `json:"total"`
	Good           int    `json:"good"`
	Maybe          int    `json:"maybe"`
	Bad            int    `json:"bad"`
	CompletionRate string `json:"completionRate"`
}

type ComparisonExport struct {
	Experiment string            `json:"experiment"`
	User       string            `json:"user"`
	TestType   schemas.Tool      `json:"testType"`
	ExportedAt string            `json:"exportedAt"`
	Tags       Tags              `json:"tags"`
	Summary    ComparisonSummary `json:"summary"`
}

// Comparison tags every variant of an item good, maybe or bad.
type Comparison struct {
	*controller[Tags]
}

func NewComparison(store *persist.Store) *Comparison {
	return &Comparison{newController(schemas.ToolComparison, store,
		func() Tags { return Tags{} },
		Tags.clone,
	)}
}

// SetTag tags one variant. TagNone removes the tag, and the item entry with
// it once the item has no tags left.
func (c *Comparison) SetTag(ctx context.Context, itemID, variant string, tag Tag) error {
	tag, err := ParseTag(string(tag))
	if err != nil {
		return err
	}
	return c.mutate(ctx, func(t Tags) (Tags, error) {
		if tag == TagNone {
			if vs, ok := t[itemID]; ok {
				delete(vs, variant)
				if len(vs) == 0 {
					delete(t, itemID)
				}
			}
			return t, nil
		}
		if t[itemID] == nil {
			t[itemID] = map[string]Tag{}
		}
		t[itemID][variant] = tag
		return t, nil
	})
}

func (c *Comparison) Tags() Tags {
	t, _ := c.snapshot()
	return t
}

func (c *Comparison) Tag(itemID, variant string) Tag {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record[itemID][variant]
}

// Summary counts tags against total, the dataset's variant count.
func (c *Comparison) Summary(total int) ComparisonSummary {
	t, _ := c.snapshot()
	return summarizeTags(t, total)
}

func summarizeTags(t Tags, total int) ComparisonSummary {
	var s ComparisonSummary
	for _, vs := range t {
		for _, tag := range vs {
			s.Total++
			switch tag {
			case TagGood:
				s.Good++
			case TagMaybe:
				s.Maybe++
			case TagBad:
				s.Bad++
			}
		}
	}
	s.CompletionRate = completionRate(s.Total, total)
	return s
}

func (c *Comparison) Export(total int, now time.Time) ComparisonExport {
	tags, sc := c.snapshot()
	return ComparisonExport{
		Experiment: sc.Experiment,
		User:       raterOrAnonymous(sc.RaterID),
		TestType:   schemas.ToolComparison,
		ExportedAt: exportTime(now),
		Tags:       tags,
		Summary:    summarizeTags(tags, total),
	}
}

func (c *Comparison) Clear(ctx context.Context, confirm Confirmer) (bool, error) {
	return c.controller.Clear(ctx, confirm, "Are you sure you want to clear all tags? This cannot be undone.")
}

// Order lists an item's variants for display: the reference first, the rest
// in the item's seeded shuffle order.
func (c *Comparison) Order(item dataset.Item) []string {
	return referenceFirst(item, ReferenceVariant)
}

func referenceFirst(item dataset.Item, reference string) []string {
	var (
		hasRef bool
		rest   []string
	)
	for _, k := range item.Keys() {
		if k == reference {
			hasRef = true
			continue
		}
		rest = append(rest, k)
	}
	rest = shuffle.Shuffle(item.ID, rest)
	if hasRef {
		return append([]string{reference}, rest...)
	}
	return rest
}
