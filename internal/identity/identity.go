// Package identity keeps the roster of raters and which one is active.
package identity

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"audio-eval/internal/localstore"
	"audio-eval/internal/persist"
	"audio-eval/internal/schemas"
)

// RosterKey is where the roster blob lives in the local store.
const RosterKey = "audio_eval_users"

// Directory is the remote rater registry. *remote.Client satisfies it.
type Directory interface {
	ListUsers(ctx context.Context) ([]schemas.User, error)
	CreateUser(ctx context.Context, id, name string) (schemas.User, error)
}

type roster struct {
	Users         []schemas.User `json:"users"`
	CurrentUserID *string        `json:"currentUserId"`
}

type Store struct {
	local         localstore.Store
	remote        Directory
	remoteEnabled bool
	now           func() time.Time

	mu      sync.Mutex
	users   []schemas.User
	current string
}

// New builds an empty store. Call Init to load the persisted roster.
func New(local localstore.Store, remote Directory, remoteEnabled bool) *Store {
	return &Store{
		local:         local,
		remote:        remote,
		remoteEnabled: remoteEnabled && remote != nil,
		now:           time.Now,
	}
}

func (s *Store) RemoteEnabled() bool { return s.remoteEnabled }

// Init loads the local roster, merges in the remote one when reachable and
// restores the previously active rater if it still exists.
func (s *Store) Init(ctx context.Context) {
	log := clog.FromContext(ctx)
	var saved roster
	if b, ok, err := s.local.Get(ctx, RosterKey); err != nil {
		log.Warnf("read roster: %v", err)
	} else if ok {
		if err := json.Unmarshal(b, &saved); err != nil {
			log.Warnf("ignoring malformed roster: %v", err)
			saved = roster{}
		}
	}

	var remoteUsers []schemas.User
	if s.remoteEnabled {
		var err error
		if remoteUsers, err = s.remote.ListUsers(ctx); err != nil {
			log.Warnf("list remote users: %v", err)
			remoteUsers = nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = MergeRosters(remoteUsers, saved.Users)
	s.current = ""
	if saved.CurrentUserID != nil {
		if _, ok := s.find(*saved.CurrentUserID); ok {
			s.current = *saved.CurrentUserID
		}
	}
	s.persistLocked(ctx)
}

// MergeRosters unions remote and local by id. Local entries win on
// collision; remote order comes first, then ids only known locally.
func MergeRosters(remote, local []schemas.User) []schemas.User {
	out := make([]schemas.User, 0, len(remote)+len(local))
	index := make(map[string]int, len(remote)+len(local))
	for _, u := range remote {
		if i, ok := index[u.ID]; ok {
			out[i] = u
			continue
		}
		index[u.ID] = len(out)
		out = append(out, u)
	}
	for _, u := range local {
		if i, ok := index[u.ID]; ok {
			out[i] = u
			continue
		}
		index[u.ID] = len(out)
		out = append(out, u)
	}
	return out
}

// Login activates id, creating it when unknown. An empty name defaults to
// the id. It reports false when id is blank or is the reserved signed-out
// id, whose records would be shared with anonymous use.
func (s *Store) Login(ctx context.Context, id, name string) (schemas.User, bool) {
	id = strings.TrimSpace(id)
	if id == "" || id == persist.Anonymous {
		return schemas.User{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}

	s.mu.Lock()
	if i, ok := s.find(id); ok {
		s.users[i].Name = name
		s.current = id
		u := s.users[i]
		s.persistLocked(ctx)
		s.mu.Unlock()
		return u, true
	}
	u := schemas.User{ID: id, Name: name, CreatedAt: s.now().UTC().Format(time.RFC3339Nano)}
	s.users = append(s.users, u)
	s.current = id
	s.persistLocked(ctx)
	s.mu.Unlock()

	if s.remoteEnabled {
		if _, err := s.remote.CreateUser(ctx, id, name); err != nil {
			clog.FromContext(ctx).Warnf("register %s remotely: %v", id, err)
		}
	}
	return u, true
}

func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
	s.persistLocked(ctx)
}

// SwitchUser activates an existing rater. Unknown ids are ignored.
func (s *Store) SwitchUser(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.find(id); !ok {
		return false
	}
	s.current = id
	s.persistLocked(ctx)
	return true
}

func (s *Store) Users() []schemas.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.User(nil), s.users...)
}

func (s *Store) HasUsers() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users) > 0
}

// Current returns the active rater, if any.
func (s *Store) Current() (schemas.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return schemas.User{}, false
	}
	i, ok := s.find(s.current)
	if !ok {
		return schemas.User{}, false
	}
	return s.users[i], true
}

// CurrentID is the active rater id, or "" when anonymous.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Store) find(id string) (int, bool) {
	for i, u := range s.users {
		if u.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (s *Store) persistLocked(ctx context.Context) {
	r := roster{Users: s.users}
	if r.Users == nil {
		r.Users = []schemas.User{}
	}
	if s.current != "" {
		id := s.current
		r.CurrentUserID = &id
	}
	b, err := json.Marshal(r)
	if err != nil {
		clog.FromContext(ctx).Errorf("encode roster: %v", err)
		return
	}
	if err := s.local.Set(ctx, RosterKey, b); err != nil {
		clog.FromContext(ctx).Errorf("save roster: %v", err)
	}
}
