package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-eval/internal/schemas"
)

const sample = `{
  "zeta": [
    {"melody_GT": {"wav": "z/gt.wav", "content": "la la"}},
    {"rebuild_02": {"wav": "z/2.wav", "content": "la"}},
    {"rebuild_01": {"wav": "z/1.wav", "content": "la la la"}}
  ],
  "alpha": [
    {"GT": {"wav": "a/gt.wav", "content": "x"}},
    "not an object",
    {"broken": {"wav": "a/b.wav"}},
    {"rebuild_01": {"wav": "a/1.wav", "content": "y"}}
  ],
  "odd": {"not": "a list"}
}`

func TestParsePreservesOrder(t *testing.T) {
	items, err := Parse(context.Background(), []byte(sample))
	require.NoError(t, err)

	want := []Item{
		{ID: "zeta", Variants: []Variant{
			{Key: "melody_GT", WAV: "z/gt.wav", Content: "la la"},
			{Key: "rebuild_02", WAV: "z/2.wav", Content: "la"},
			{Key: "rebuild_01", WAV: "z/1.wav", Content: "la la la"},
		}},
		{ID: "alpha", Variants: []Variant{
			{Key: "GT", WAV: "a/gt.wav", Content: "x"},
			{Key: "rebuild_01", WAV: "a/1.wav", Content: "y"},
		}},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("Parse (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"melody_GT", "rebuild_02", "rebuild_01"}, items[0].Keys())
}

func TestParseRejectsNonObject(t *testing.T) {
	for _, in := range []string{`[]`, `"x"`, `{"a":`, ``} {
		_, err := Parse(context.Background(), []byte(in))
		assert.Error(t, err, in)
	}
}

func TestRelPath(t *testing.T) {
	assert.Equal(t, "data/exp1/data.json", RelPath(schemas.ToolComparison, "exp1"))
	assert.Equal(t, "data/default/data.json", RelPath(schemas.ToolComparison, ""))
	assert.Equal(t, "data/abtest/exp1/data.json", RelPath(schemas.ToolABTest, "exp1"))
	assert.Equal(t, "data/mos/exp2/data.json", RelPath(schemas.ToolMOS, "exp2"))
}

func TestLoadFromDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "data", "mos", "exp1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte(sample), 0o644))

	ds, err := Loader{Root: root}.Load(context.Background(), schemas.ToolMOS, "exp1")
	require.NoError(t, err)
	assert.Len(t, ds.Items, 2)
	assert.Equal(t, 5, ds.VariantCount())
	_, ok := ds.Item("alpha")
	assert.True(t, ok)
}

func TestLoadMissingIsLoadError(t *testing.T) {
	_, err := Loader{Root: t.TempDir()}.Load(context.Background(), schemas.ToolABTest, "nope")
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "nope", le.Experiment)
	assert.Contains(t, le.Path, filepath.Join("data", "abtest", "nope", "data.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadOverHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/base/data/exp1/data.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(sample))
	}))
	defer ts.Close()

	l := Loader{Root: ts.URL + "/base/"}
	ds, err := l.Load(context.Background(), schemas.ToolComparison, "exp1")
	require.NoError(t, err)
	assert.Equal(t, "zeta", ds.Items[0].ID)

	_, err = l.Load(context.Background(), schemas.ToolComparison, "exp2")
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Contains(t, le.Error(), "404")
}
