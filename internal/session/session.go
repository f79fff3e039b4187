// Package session holds the live judgment record for one evaluation tool and
// keeps it in step with the persistence layer as the experiment or rater
// changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"audio-eval/internal/persist"
	"audio-eval/internal/schemas"
)

var (
	// ErrNotReady is returned by mutations while a record is still loading.
	ErrNotReady     = errors.New("session: record not loaded")
	ErrInvalidTag   = errors.New("session: invalid tag")
	ErrInvalidScore = errors.New("session: score must be between 1 and 5")
	// ErrNotSelectable rejects choosing the reference variant in an A/B test.
	ErrNotSelectable = errors.New("session: reference variant cannot be selected")
	// ErrSuperseded is returned by Clear when the active record changed
	// while confirmation was pending.
	ErrSuperseded = errors.New("session: record switched before clear")
)

type State int

const (
	Uninitialized State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Confirmer gates destructive operations.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// controller owns one record of type R for the active (experiment, rater).
type controller[R any] struct {
	tool  schemas.Tool
	store *persist.Store
	empty func() R
	clone func(R) R
	// prepare runs after a load, outside the lock; the returned func is
	// applied under the lock only if the load is still current.
	prepare func(ctx context.Context, sc persist.Scope) func()

	mu     sync.Mutex
	state  State
	token  uint64
	scope  persist.Scope
	record R

	// flushMu serializes mutate-and-save so saves land in mutation order.
	flushMu sync.Mutex
}

func newController[R any](tool schemas.Tool, store *persist.Store, empty func() R, clone func(R) R) *controller[R] {
	return &controller[R]{
		tool:   tool,
		store:  store,
		empty:  empty,
		clone:  clone,
		record: empty(),
	}
}

// Switch discards the current record and loads the one for experiment and
// raterID (empty for anonymous). It reports false when a later Switch
// superseded this one before its load finished; the stale result is dropped.
func (c *controller[R]) Switch(ctx context.Context, experiment, raterID string) bool {
	sc := persist.Scope{Tool: c.tool, Experiment: experiment, RaterID: raterID}

	c.mu.Lock()
	c.token++
	tok := c.token
	c.scope = sc
	c.state = Loading
	c.record = c.empty()
	c.mu.Unlock()

	rec := c.empty()
	if persist.LoadInto(ctx, c.store, sc, &rec) {
		rec = c.clone(rec)
	} else {
		rec = c.empty()
	}
	var apply func()
	if c.prepare != nil {
		apply = c.prepare(ctx, sc)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tok != c.token {
		return false
	}
	c.record = rec
	if apply != nil {
		apply()
	}
	c.state = Ready
	return true
}

func (c *controller[R]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *controller[R]) Scope() persist.Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

// snapshot returns a copy of the record and its scope.
func (c *controller[R]) snapshot() (R, persist.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clone(c.record), c.scope
}

// mutate applies fn to the live record and saves the whole record.
func (c *controller[R]) mutate(ctx context.Context, fn func(R) (R, error)) error {
	return c.mutateAt(ctx, 0, fn)
}

// mutateAt is mutate bound to the record loaded under token tok. It returns
// ErrSuperseded once a Switch has replaced that record. Zero binds to
// whichever record is current.
func (c *controller[R]) mutateAt(ctx context.Context, tok uint64, fn func(R) (R, error)) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if tok != 0 && tok != c.token {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if c.state != Ready {
		c.mu.Unlock()
		return ErrNotReady
	}
	next, err := fn(c.record)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.record = next
	snap, sc := c.clone(next), c.scope
	c.mu.Unlock()

	return c.store.Save(ctx, sc, snap)
}

// Clear empties the record once confirm agrees. It reports whether the
// record was cleared. The agreement only covers the record that was active
// when confirm was asked; if a Switch lands first nothing is cleared and
// ErrSuperseded is returned.
func (c *controller[R]) Clear(ctx context.Context, confirm Confirmer, prompt string) (bool, error) {
	c.mu.Lock()
	state, tok := c.state, c.token
	c.mu.Unlock()
	if state != Ready {
		return false, ErrNotReady
	}
	if confirm == nil || !confirm.Confirm(ctx, prompt) {
		return false, nil
	}
	err := c.mutateAt(ctx, tok, func(R) (R, error) { return c.empty(), nil })
	return err == nil, err
}

// Filename is the export file name for tool and experiment on the UTC date of t.
func Filename(tool schemas.Tool, experiment string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s.json", tool, experiment, t.UTC().Format("2006-01-02"))
}

const exportTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func exportTime(t time.Time) string { return t.UTC().Format(exportTimeLayout) }

func raterOrAnonymous(id string) string {
	if id == "" {
		return persist.Anonymous
	}
	return id
}

// completionRate renders completed/total as a whole percentage, "0%" when
// total is zero.
func completionRate(completed, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", int(math.Floor(float64(completed)*100/float64(total)+0.5)))
}
