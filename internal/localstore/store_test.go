package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStores(t *testing.T) {
	for name, mk := range map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store { return newSQLite(t) },
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			_, ok, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "audio_mos_scores_exp1_alice", []byte(`{"a:b":3}`)))
			require.NoError(t, s.Set(ctx, "audio_mos_scores_exp1_bob", []byte(`{}`)))
			require.NoError(t, s.Set(ctx, "audio_eval_users", []byte(`{"users":[]}`)))

			v, ok, err := s.Get(ctx, "audio_mos_scores_exp1_alice")
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, `{"a:b":3}`, string(v))

			require.NoError(t, s.Set(ctx, "audio_mos_scores_exp1_alice", []byte(`{"a:b":5}`)))
			v, _, err = s.Get(ctx, "audio_mos_scores_exp1_alice")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a:b":5}`, string(v))

			keys, err := s.Keys(ctx, "audio_mos_scores_")
			require.NoError(t, err)
			assert.Equal(t, []string{"audio_mos_scores_exp1_alice", "audio_mos_scores_exp1_bob"}, keys)

			all, err := s.Keys(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			require.NoError(t, s.Delete(ctx, "audio_mos_scores_exp1_bob"))
			_, ok, err = s.Get(ctx, "audio_mos_scores_exp1_bob")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "audio_mos_scores_é试验_zoë", []byte(`{}`)))
			require.NoError(t, s.Set(ctx, "audio_mos_scores_é试验2_zoë", []byte(`{}`)))
			keys, err = s.Keys(ctx, "audio_mos_scores_é试验_")
			require.NoError(t, err)
			assert.Equal(t, []string{"audio_mos_scores_é试验_zoë"}, keys)

			assert.Error(t, s.Set(ctx, "", []byte(`{}`)))
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte(`[1,2]`)))
	require.NoError(t, s.Close())

	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()
	v, ok, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[1,2]`, string(v))
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte(`{"a":1}`)
	require.NoError(t, m.Set(ctx, "k", buf))
	buf[2] = 'z'
	v, _, _ := m.Get(ctx, "k")
	assert.Equal(t, `{"a":1}`, string(v))
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("")
	assert.Error(t, err)
}
