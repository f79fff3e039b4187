// Package app wires the rating client: local cache, remote API, identity and
// persistence, all sharing one remote-enabled decision made at startup.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"audio-eval/internal/config"
	"audio-eval/internal/dataset"
	"audio-eval/internal/identity"
	"audio-eval/internal/localstore"
	"audio-eval/internal/persist"
	"audio-eval/internal/remote"
	"audio-eval/internal/schemas"
	"audio-eval/internal/session"
)

const probeTimeout = 3 * time.Second

// Prober is the health check used to decide whether the API is usable.
type Prober interface {
	Health(ctx context.Context) error
}

type App struct {
	Config        config.Rater
	Local         localstore.Store
	Remote        *remote.Client
	RemoteEnabled bool
	Identity      *identity.Store
	Persist       *persist.Store
	Datasets      dataset.Loader

	closeLocal func() error
}

// Open builds an App on the sqlite cache named by cfg.
func Open(ctx context.Context, cfg config.Rater) (*App, error) {
	local, err := localstore.OpenSQLite(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}
	client := remote.New(cfg.APIURL, remote.WithToken(cfg.APIToken))
	a := New(ctx, cfg, local, client)
	a.closeLocal = local.Close
	return a, nil
}

// New builds an App over an existing local store. The API is probed once;
// the result holds for the App's lifetime.
func New(ctx context.Context, cfg config.Rater, local localstore.Store, client *remote.Client) *App {
	enabled := cfg.UseBackend && client != nil && Probe(ctx, client)
	var (
		dir identity.Directory
		rem persist.Remote
	)
	if client != nil {
		dir, rem = client, client
	}
	a := &App{
		Config:        cfg,
		Local:         local,
		Remote:        client,
		RemoteEnabled: enabled,
		Identity:      identity.New(local, dir, enabled),
		Persist:       persist.New(local, rem, enabled),
		Datasets:      dataset.Loader{Root: cfg.DataRoot},
	}
	a.Identity.Init(ctx)
	return a
}

// Probe reports whether p answers its health check in time.
func Probe(ctx context.Context, p Prober) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := p.Health(ctx); err != nil {
		clog.FromContext(ctx).Warnf("backend unavailable, working offline: %v", err)
		return false
	}
	return true
}

func (a *App) Close() error {
	if a.closeLocal == nil {
		return nil
	}
	return a.closeLocal()
}

// Comparison returns a comparison session loaded for experiment and the
// active rater.
func (a *App) Comparison(ctx context.Context, experiment string) *session.Comparison {
	c := session.NewComparison(a.Persist)
	c.Switch(ctx, experiment, a.Identity.CurrentID())
	return c
}

func (a *App) ABTest(ctx context.Context, experiment string) *session.ABTest {
	s := session.NewABTest(a.Persist)
	s.Switch(ctx, experiment, a.Identity.CurrentID())
	return s
}

func (a *App) MOS(ctx context.Context, experiment string) *session.MOS {
	m := session.NewMOS(a.Persist)
	m.Switch(ctx, experiment, a.Identity.CurrentID())
	return m
}

// Dataset loads the items for tool and experiment.
func (a *App) Dataset(ctx context.Context, tool schemas.Tool, experiment string) (*dataset.Dataset, error) {
	ds, err := a.Datasets.Load(ctx, tool, experiment)
	var le *dataset.LoadError
	if errors.As(err, &le) {
		clog.FromContext(ctx).Errorf("%v", le)
	}
	return ds, err
}
