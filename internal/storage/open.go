package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"memebot/internal/media"
	logx "memebot/pkg/logx"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	defaultConnectRetries = 3
	defaultRetryBase      = 500 * time.Millisecond
	defaultRetryMax       = 5 * time.Second
)

// Open connects the configured store and applies its schema. Connection
// failures (media.ErrStoreUnavailable) are retried a bounded number of times
// with exponential backoff; any other error fails immediately.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	var open func(context.Context, Config, logx.Logger) (*Store, error)
	switch driver {
	case "", "sqlite", "sqlite3":
		open = openSQLite
	case "postgres", "postgresql", "pg":
		open = openPostgres
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = defaultConnectRetries
	}
	base, maxDelay := cfg.RetryBaseDelay, cfg.RetryMaxDelay
	if base <= 0 {
		base = defaultRetryBase
	}
	if maxDelay < base {
		maxDelay = defaultRetryMax
	}

	retry := retrypolicy.NewBuilder[*Store]().
		WithBackoff(base, maxDelay).
		WithMaxRetries(retries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *Store, err error) bool {
			return errors.Is(err, media.ErrStoreUnavailable)
		}).
		Build()

	attempt := 0
	return failsafe.With(retry).WithContext(ctx).Get(func() (*Store, error) {
		attempt++
		st, err := open(ctx, cfg, log)
		if err != nil && errors.Is(err, media.ErrStoreUnavailable) {
			log.Warn("store connect failed", logx.Int("attempt", attempt), logx.Int("max_retries", retries), logx.Err(err))
		}
		return st, err
	})
}
