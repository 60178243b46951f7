package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Push      PushConfig      `json:"push"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Luck      LuckConfig      `json:"luck"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty when BOT_TOKEN is set.
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	PollTimeout  string  `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the cron trigger service.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig selects the durable store.
//
// Examples:
//
//	"storage": { "driver": "sqlite", "path": "./memebot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@localhost/memes?sslmode=disable" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // may come from DATABASE_URL
	BusyTimeout string `json:"busy_timeout,omitempty"`

	MaxOpenConns    int    `json:"max_open_conns,omitempty"`
	MaxIdleConns    int    `json:"max_idle_conns,omitempty"`
	ConnMaxLifetime string `json:"conn_max_lifetime,omitempty"`

	ConnectRetries int    `json:"connect_retries,omitempty"`
	RetryBase      string `json:"retry_base,omitempty"`
	RetryMaxDelay  string `json:"retry_max_delay,omitempty"`
}

// DeliveryConfig controls the daily quota. Timezone falls back to
// scheduler.timezone, then UTC.
type DeliveryConfig struct {
	DailyCap int    `json:"daily_cap"`
	Timezone string `json:"timezone,omitempty"`
}

type PushConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // default "0 12 * * *"
	Kind     string `json:"kind,omitempty"`     // default "video"
	Timeout  string `json:"timeout,omitempty"`
}

type BroadcastConfig struct {
	RatePerSec  int    `json:"rate_per_sec"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// LuckConfig selects the daily luck cache. Backend is "memory" or "redis".
type LuckConfig struct {
	Backend   string `json:"backend"`
	RedisURL  string `json:"redis_url,omitempty"` // may come from REDIS_URL
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// MetricsConfig controls the optional /metrics server.
//
// Binding to a non-loopback address requires a token or allow_insecure.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default "127.0.0.1:9090"
	Path          string `json:"path,omitempty"` // default "/metrics"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	Pprof       bool   `json:"pprof,omitempty"`
	PprofPrefix string `json:"pprof_prefix,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
