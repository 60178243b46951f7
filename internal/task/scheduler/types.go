package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"memebot/internal/eventbus"
	logx "memebot/pkg/logx"
)

// Config controls the scheduler.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Moscow"
}

// TopicRun is published after every finished or skipped run.
const TopicRun = "scheduler.run"

// RunEvent is the payload of TopicRun.
type RunEvent struct {
	Name    string
	Skipped bool
	Err     error
	Dur     time.Duration
}

type scheduleDef struct {
	name    string
	spec    string // cron expression or descriptor (@daily, @every 1h)
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	running *atomic.Bool
	skipped *atomic.Uint64
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
	Skipped uint64
}

type Snapshot struct {
	Enabled   bool
	Timezone  string
	Schedules []ScheduleInfo
}
