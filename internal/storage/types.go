package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL at DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default

	MaxOpenConns    int           // postgres only
	MaxIdleConns    int           // postgres only
	ConnMaxLifetime time.Duration // postgres only

	// ConnectRetries bounds the startup connection attempts after the first.
	ConnectRetries int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Role of a privileged user. Owners are seeded from config and cannot be revoked.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// PrivilegedUser is a user who bypasses quotas and the subscription gate.
type PrivilegedUser struct {
	UserID  int64
	Role    Role
	AddedBy int64
	AddedAt time.Time
}

// GateChannel is a channel users must be subscribed to.
type GateChannel struct {
	Username string
	AddedBy  int64
	AddedAt  time.Time
}
