// Package persist reads and writes judgment records through two tiers: the
// on-device local store, always, and the progress API when it is enabled and
// a rater is signed in.
package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chainguard-dev/clog"

	"audio-eval/internal/localstore"
	"audio-eval/internal/schemas"
)

// Anonymous stands in for the rater id when nobody is signed in.
const Anonymous = "anonymous"

// Local key prefixes.
const (
	PrefixComparison = "audio_comparison_tags"
	PrefixABTest     = "audio_abtest_selection"
	PrefixMOS        = "audio_mos_scores"
	PrefixBlindMode  = "abtest_blind_mode"
)

// Prefix returns the local key prefix for tool.
func Prefix(tool schemas.Tool) string {
	switch tool {
	case schemas.ToolComparison:
		return PrefixComparison
	case schemas.ToolABTest:
		return PrefixABTest
	case schemas.ToolMOS:
		return PrefixMOS
	}
	return "audio_" + string(tool)
}

// StorageKey builds "<prefix>_<experiment>_<rater|anonymous>".
func StorageKey(prefix, experiment, raterID string) string {
	if raterID == "" {
		raterID = Anonymous
	}
	return prefix + "_" + experiment + "_" + raterID
}

// Scope addresses one judgment record.
type Scope struct {
	Tool       schemas.Tool
	Experiment string
	// RaterID is empty when nobody is signed in.
	RaterID string
}

func (s Scope) Key() string { return StorageKey(Prefix(s.Tool), s.Experiment, s.RaterID) }

func (s Scope) String() string {
	r := s.RaterID
	if r == "" {
		r = Anonymous
	}
	return fmt.Sprintf("%s/%s/%s", s.Tool, s.Experiment, r)
}

// Remote is the slice of the progress API the layer needs. *remote.Client
// satisfies it.
type Remote interface {
	GetProgress(ctx context.Context, tool, experiment, userID string) (json.RawMessage, bool, error)
	SaveProgress(ctx context.Context, tool, experiment, userID string, data json.RawMessage) error
}

type Store struct {
	local         localstore.Store
	remote        Remote
	remoteEnabled bool
}

// New builds the layer. remoteEnabled is fixed for the Store's lifetime; a
// nil remote disables it regardless.
func New(local localstore.Store, remote Remote, remoteEnabled bool) *Store {
	return &Store{local: local, remote: remote, remoteEnabled: remoteEnabled && remote != nil}
}

func (s *Store) RemoteEnabled() bool { return s.remoteEnabled }

func (s *Store) Local() localstore.Store { return s.local }

func (s *Store) useRemote(sc Scope) bool { return s.remoteEnabled && sc.RaterID != "" }

// Load returns the record for sc. A non-null remote record wins and is
// mirrored locally; otherwise the local copy is used. Missing or malformed
// data reports found=false. Load never fails.
func (s *Store) Load(ctx context.Context, sc Scope) (json.RawMessage, bool) {
	log := clog.FromContext(ctx).With("scope", sc.String())
	if s.useRemote(sc) {
		data, found, err := s.remote.GetProgress(ctx, string(sc.Tool), sc.Experiment, sc.RaterID)
		switch {
		case err != nil:
			remoteFallbacks.WithLabelValues(string(sc.Tool), "load").Inc()
			log.Warnf("remote load failed, using local copy: %v", err)
		case found:
			s.writeLocal(ctx, sc.Key(), data)
			return data, true
		}
	}

	b, ok, err := s.local.Get(ctx, sc.Key())
	if err != nil {
		log.Warnf("local read failed: %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !json.Valid(b) {
		log.Warnf("ignoring malformed local record under %s", sc.Key())
		return nil, false
	}
	return json.RawMessage(b), true
}

// Save writes record locally and then, best effort, to the API. Only a
// record that cannot be encoded is reported.
func (s *Store) Save(ctx context.Context, sc Scope, record any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", sc, err)
	}
	s.writeLocal(ctx, sc.Key(), b)
	if s.useRemote(sc) {
		if err := s.remote.SaveProgress(ctx, string(sc.Tool), sc.Experiment, sc.RaterID, b); err != nil {
			remoteFallbacks.WithLabelValues(string(sc.Tool), "save").Inc()
			clog.FromContext(ctx).With("scope", sc.String()).Warnf("remote save failed, kept local copy: %v", err)
		}
	}
	return nil
}

func (s *Store) writeLocal(ctx context.Context, key string, b []byte) {
	if err := s.local.Set(ctx, key, b); err != nil {
		localWriteFailures.Inc()
		clog.FromContext(ctx).Errorf("local write %s: %v", key, err)
	}
}

// LoadInto decodes the record for sc into dst. It reports false, leaving dst
// untouched, when nothing usable is stored.
func LoadInto[T any](ctx context.Context, s *Store, sc Scope, dst *T) bool {
	data, ok := s.Load(ctx, sc)
	if !ok {
		return false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		clog.FromContext(ctx).Warnf("record %s has unexpected shape: %v", sc, err)
		return false
	}
	*dst = v
	return true
}
