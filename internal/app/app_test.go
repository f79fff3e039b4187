package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-eval/internal/config"
	api "audio-eval/internal/http"
	"audio-eval/internal/localstore"
	"audio-eval/internal/remote"
	"audio-eval/internal/session"
	"audio-eval/internal/testutil"
)

type proberFunc func(context.Context) error

func (f proberFunc) Health(ctx context.Context) error { return f(ctx) }

func TestProbe(t *testing.T) {
	assert.True(t, Probe(context.Background(), proberFunc(func(context.Context) error { return nil })))
	assert.False(t, Probe(context.Background(), proberFunc(func(context.Context) error { return errors.New("down") })))
}

func TestOfflineWhenBackendDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ctx := context.Background()
	cfg := config.DefaultRater()
	a := New(ctx, cfg, localstore.NewMemory(), remote.New(ts.URL))
	assert.False(t, a.RemoteEnabled)
	assert.False(t, a.Persist.RemoteEnabled())
	assert.False(t, a.Identity.RemoteEnabled())

	a.Identity.Login(ctx, "ann", "Ann")
	m := a.MOS(ctx, "exp1")
	require.NoError(t, m.SetScore(ctx, "u1", "GT", 5))

	again := a.MOS(ctx, "exp1")
	score, ok := again.Score("u1", "GT")
	assert.True(t, ok)
	assert.Equal(t, 5, score)
}

func TestUseBackendFalseSkipsProbe(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	cfg := config.DefaultRater()
	cfg.UseBackend = false
	a := New(context.Background(), cfg, localstore.NewMemory(), remote.New(ts.URL))
	assert.False(t, a.RemoteEnabled)
	assert.False(t, called)
}

func TestOpenUsesSQLiteCache(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultRater()
	cfg.UseBackend = false
	cfg.CachePath = filepath.Join(t.TempDir(), "cache", "local.db")

	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	a.Identity.Login(ctx, "bob", "")
	c := a.Comparison(ctx, "exp1")
	require.NoError(t, c.SetTag(ctx, "u1", "rebuild_01", session.TagGood))
	require.NoError(t, a.Close())

	b, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "bob", b.Identity.CurrentID())
	assert.Equal(t, session.TagGood, b.Comparison(ctx, "exp1").Tag("u1", "rebuild_01"))
}

func TestTwoDevicesShareProgress(t *testing.T) {
	ctx := context.Background()
	srv := &api.Server{DB: testutil.NewDB(t)}
	ts := httptest.NewServer(srv.Router(""))
	defer ts.Close()

	cfg := config.DefaultRater()
	laptop := New(ctx, cfg, localstore.NewMemory(), remote.New(ts.URL))
	require.True(t, laptop.RemoteEnabled)
	laptop.Identity.Login(ctx, "ann", "Ann")
	ab := laptop.ABTest(ctx, "exp1")
	require.NoError(t, ab.Select(ctx, "u1", "rebuild_02"))

	desktop := New(ctx, cfg, localstore.NewMemory(), remote.New(ts.URL))
	require.Len(t, desktop.Identity.Users(), 1)
	require.True(t, desktop.Identity.SwitchUser(ctx, "ann"))
	got, selected := desktop.ABTest(ctx, "exp1").Selected("u1")
	assert.True(t, selected)
	assert.Equal(t, "rebuild_02", got)

	// anonymous work never leaves the device
	desktop.Identity.Logout(ctx)
	anon := desktop.ABTest(ctx, "exp1")
	_, selected = anon.Selected("u1")
	assert.False(t, selected)
}
