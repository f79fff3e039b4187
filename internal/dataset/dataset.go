// Package dataset loads the audio items an experiment presents to raters.
//
// A data file is a JSON object mapping item id to an ordered list of
// single-key objects, each {variantKey: {"wav": ..., "content": ...}}. Item
// order and variant order are taken from the file as written.
package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/tidwall/gjson"

	"audio-eval/internal/schemas"
)

// DefaultExperiment is used by the comparison tool when no experiment is named.
const DefaultExperiment = "default"

type Variant struct {
	Key     string `json:"key"`
	WAV     string `json:"wav"`
	Content string `json:"content"`
}

type Item struct {
	ID       string    `json:"id"`
	Variants []Variant `json:"variants"`
}

// Keys returns the variant keys in file order.
func (it Item) Keys() []string {
	keys := make([]string, len(it.Variants))
	for i, v := range it.Variants {
		keys[i] = v.Key
	}
	return keys
}

func (it Item) Variant(key string) (Variant, bool) {
	for _, v := range it.Variants {
		if v.Key == key {
			return v, true
		}
	}
	return Variant{}, false
}

type Dataset struct {
	Tool       schemas.Tool
	Experiment string
	Source     string
	Items      []Item
}

// VariantCount is the number of (item, variant) pairs.
func (d *Dataset) VariantCount() int {
	n := 0
	for _, it := range d.Items {
		n += len(it.Variants)
	}
	return n
}

func (d *Dataset) Item(id string) (Item, bool) {
	for _, it := range d.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// LoadError is returned when a data file cannot be fetched or is not a JSON
// object.
type LoadError struct {
	Experiment string
	Path       string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load data for experiment %q from %s: %v", e.Experiment, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Parse decodes a data file. Entries of the wrong shape are skipped with a
// warning; only a document that is not a JSON object is an error.
func Parse(ctx context.Context, data []byte) ([]Item, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("top level is %s, want object", doc.Type)
	}
	log := clog.FromContext(ctx)

	items := make([]Item, 0)
	doc.ForEach(func(id, variants gjson.Result) bool {
		if !variants.IsArray() {
			log.Warnf("skipping item %s: variants are not a list", id.String())
			return true
		}
		it := Item{ID: id.String()}
		variants.ForEach(func(_, entry gjson.Result) bool {
			key, v, ok := firstVariant(entry)
			if !ok {
				log.Warnf("skipping malformed variant in item %s: %s", it.ID, entry.Raw)
				return true
			}
			for i := range it.Variants {
				if it.Variants[i].Key == key {
					it.Variants[i] = v
					return true
				}
			}
			it.Variants = append(it.Variants, v)
			return true
		})
		items = append(items, it)
		return true
	})
	return items, nil
}

func firstVariant(entry gjson.Result) (string, Variant, bool) {
	if !entry.IsObject() {
		return "", Variant{}, false
	}
	var (
		key   string
		value gjson.Result
		found bool
	)
	entry.ForEach(func(k, v gjson.Result) bool {
		key, value, found = k.String(), v, true
		return false
	})
	if !found || !value.IsObject() {
		return "", Variant{}, false
	}
	wav, content := value.Get("wav"), value.Get("content")
	if !wav.Exists() || !content.Exists() {
		return "", Variant{}, false
	}
	return key, Variant{Key: key, WAV: wav.String(), Content: content.String()}, true
}

// RelPath is the data file location for tool and experiment relative to the
// dataset root.
func RelPath(tool schemas.Tool, experiment string) string {
	switch tool {
	case schemas.ToolABTest, schemas.ToolMOS:
		return path.Join("data", string(tool), experiment, "data.json")
	}
	if experiment == "" {
		experiment = DefaultExperiment
	}
	return path.Join("data", experiment, "data.json")
}

// Loader reads data files from a directory or an http(s) base URL.
type Loader struct {
	Root string
	HTTP *http.Client
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (l Loader) location(tool schemas.Tool, experiment string) string {
	rel := RelPath(tool, experiment)
	if isURL(l.Root) {
		return strings.TrimRight(l.Root, "/") + "/" + rel
	}
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

func (l Loader) Load(ctx context.Context, tool schemas.Tool, experiment string) (*Dataset, error) {
	loc := l.location(tool, experiment)
	fail := func(err error) error {
		return &LoadError{Experiment: experiment, Path: loc, Err: err}
	}

	var (
		b   []byte
		err error
	)
	if isURL(loc) {
		b, err = l.fetch(ctx, loc)
	} else {
		b, err = os.ReadFile(loc)
	}
	if err != nil {
		return nil, fail(err)
	}
	items, err := Parse(ctx, b)
	if err != nil {
		return nil, fail(err)
	}
	return &Dataset{Tool: tool, Experiment: experiment, Source: loc, Items: items}, nil
}

func (l Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	c := l.HTTP
	if c == nil {
		c = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s -> %d", url, res.StatusCode)
	}
	return io.ReadAll(res.Body)
}
