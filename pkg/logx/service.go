package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

type TelegramConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const defaultLogFile = "./memebot.log"

// Service owns the log outputs and rebuilds them on Apply. Loggers handed out
// by New keep working across rebuilds.
type Service struct {
	mu   sync.Mutex
	root atomic.Pointer[zerolog.Logger]
	file *os.File
	tg   *telegramSink
}

// New builds the outputs for cfg. sender may be nil when no Telegram sink is
// wanted.
func New(cfg Config, sender TextSender) (*Service, Logger) {
	setGlobals()
	s := &Service{tg: newTelegramSink(sender)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// SetTelegramTarget sets the chat (and forum topic, when non-zero) that
// receives forwarded records.
func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	s.tg.setTarget(chatID, threadID)
}

// Apply swaps level and outputs. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var outs []io.Writer
	if cfg.Console {
		outs = append(outs, consoleWriter())
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file = f
			outs = append(outs, zerolog.SyncWriter(f))
		}
	}
	s.tg.configure(cfg.Telegram)
	if cfg.Telegram.Enabled {
		s.tg.start()
		outs = append(outs, s.tg)
		if !s.tg.hasTarget() {
			fmt.Fprintln(os.Stderr, "logx: telegram logging enabled without telegram.group_log")
		}
	}
	if len(outs) == 0 {
		outs = append(outs, consoleWriter())
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(outs...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close stops the Telegram sink and closes the log file.
func (s *Service) Close() error {
	s.tg.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat}
}
