// Package access keeps the privileged-user and gate-channel lists.
//
// The store is the source of truth; the service holds an immutable snapshot
// that is swapped after every mutation so checks on the hot path never touch
// the database.
package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"memebot/internal/storage"
	logx "memebot/pkg/logx"
)

var (
	ErrInvalidChannel = errors.New("channel must look like @name")
	ErrOwnerProtected = errors.New("owners cannot be revoked")
	ErrInvalidUser    = errors.New("invalid user id")
)

// Store is the persisted side of the lists.
type Store interface {
	AddPrivileged(ctx context.Context, p storage.PrivilegedUser) (bool, error)
	SeedOwner(ctx context.Context, userID int64) error
	RemovePrivileged(ctx context.Context, userID int64) (bool, error)
	ListPrivileged(ctx context.Context) ([]storage.PrivilegedUser, error)
	AddChannel(ctx context.Context, c storage.GateChannel) (bool, error)
	RemoveChannel(ctx context.Context, username string) (bool, error)
	ListChannels(ctx context.Context) ([]storage.GateChannel, error)
}

type snapshot struct {
	roles    map[int64]storage.Role
	users    []storage.PrivilegedUser
	channels []string
}

type Service struct {
	store Store
	log   logx.Logger
	snap  atomic.Pointer[snapshot]
}

func New(store Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{store: store, log: log.With(logx.String("comp", "access"))}
	s.snap.Store(&snapshot{roles: map[int64]storage.Role{}})
	return s
}

// Load seeds owners and reads both lists from the store.
func (s *Service) Load(ctx context.Context, owners []int64) error {
	for _, id := range owners {
		if id <= 0 {
			continue
		}
		if err := s.store.SeedOwner(ctx, id); err != nil {
			return fmt.Errorf("seed owner %d: %w", id, err)
		}
	}
	if err := s.refresh(ctx); err != nil {
		return err
	}
	snap := s.snap.Load()
	s.log.Info("access lists loaded", logx.Int("privileged", len(snap.users)), logx.Int("channels", len(snap.channels)))
	return nil
}

func (s *Service) refresh(ctx context.Context) error {
	users, err := s.store.ListPrivileged(ctx)
	if err != nil {
		return fmt.Errorf("list privileged: %w", err)
	}
	chans, err := s.store.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	next := &snapshot{roles: make(map[int64]storage.Role, len(users)), users: users}
	for _, u := range users {
		next.roles[u.UserID] = u.Role
	}
	for _, c := range chans {
		next.channels = append(next.channels, c.Username)
	}
	sort.Strings(next.channels)
	s.snap.Store(next)
	return nil
}

func (s *Service) IsPrivileged(_ context.Context, userID int64) bool {
	_, ok := s.snap.Load().roles[userID]
	return ok
}

func (s *Service) IsOwner(_ context.Context, userID int64) bool {
	return s.snap.Load().roles[userID] == storage.RoleOwner
}

// Grant makes userID an admin. It reports false when the user already held a role.
func (s *Service) Grant(ctx context.Context, actor, userID int64) (bool, error) {
	if userID <= 0 {
		return false, ErrInvalidUser
	}
	created, err := s.store.AddPrivileged(ctx, storage.PrivilegedUser{UserID: userID, Role: storage.RoleAdmin, AddedBy: actor})
	if err != nil {
		return false, err
	}
	if created {
		s.log.Info("admin granted", logx.Int64("user_id", userID), logx.Int64("by", actor))
	}
	return created, s.refresh(ctx)
}

// Revoke removes an admin. Owners are refused with ErrOwnerProtected.
func (s *Service) Revoke(ctx context.Context, actor, userID int64) (bool, error) {
	if s.IsOwner(ctx, userID) {
		return false, ErrOwnerProtected
	}
	removed, err := s.store.RemovePrivileged(ctx, userID)
	if err != nil {
		return false, err
	}
	if removed {
		s.log.Info("admin revoked", logx.Int64("user_id", userID), logx.Int64("by", actor))
	}
	return removed, s.refresh(ctx)
}

// List returns the privileged users, owners first.
func (s *Service) List(context.Context) []storage.PrivilegedUser {
	users := append([]storage.PrivilegedUser(nil), s.snap.Load().users...)
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Role != users[j].Role {
			return users[i].Role == storage.RoleOwner
		}
		return users[i].UserID < users[j].UserID
	})
	return users
}

// NormalizeChannel validates "@name" and lowercases it.
func NormalizeChannel(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 || name[0] != '@' || strings.ContainsAny(name, " /") {
		return "", ErrInvalidChannel
	}
	return strings.ToLower(name), nil
}

func (s *Service) AddChannel(ctx context.Context, actor int64, name string) (bool, error) {
	name, err := NormalizeChannel(name)
	if err != nil {
		return false, err
	}
	created, err := s.store.AddChannel(ctx, storage.GateChannel{Username: name, AddedBy: actor})
	if err != nil {
		return false, err
	}
	if created {
		s.log.Info("gate channel added", logx.String("channel", name), logx.Int64("by", actor))
	}
	return created, s.refresh(ctx)
}

func (s *Service) RemoveChannel(ctx context.Context, actor int64, name string) (bool, error) {
	name, err := NormalizeChannel(name)
	if err != nil {
		return false, err
	}
	removed, err := s.store.RemoveChannel(ctx, name)
	if err != nil {
		return false, err
	}
	if removed {
		s.log.Info("gate channel removed", logx.String("channel", name), logx.Int64("by", actor))
	}
	return removed, s.refresh(ctx)
}

// Channels returns the gate channels, sorted.
func (s *Service) Channels(context.Context) []string {
	return append([]string(nil), s.snap.Load().channels...)
}
