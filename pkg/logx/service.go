package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Alerts  AlertConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// AlertConfig forwards records at or above MinLevel to ChatID,
// at most RatePerSec per second. Excess alerts are dropped.
type AlertConfig struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Sender posts one alert to an operator chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

const defaultLogFile = "./reminderd.log"

// Service owns the sinks behind every Logger it hands out.
type Service struct {
	out  io.Writer
	root atomic.Pointer[zerolog.Logger]

	mu    sync.Mutex
	cfg   Config
	file  *os.File
	alert alertState

	sender Sender
	queue  chan alert
	start  sync.Once
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

// New applies cfg and returns the service with a live root Logger.
// sender may be nil, which disables alerts.
func New(cfg Config, sender Sender) (*Service, Logger) {
	s := &Service{out: os.Stdout, sender: sender, queue: make(chan alert, 256)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply rebuilds the sinks from cfg. Loggers already handed out pick up
// the change on their next record.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	rps := max(1, cfg.Alerts.RatePerSec)
	s.alert = alertState{
		chatID:   cfg.Alerts.ChatID,
		threadID: cfg.Alerts.ThreadID,
		min:      parseLevel(cfg.Alerts.MinLevel, zerolog.WarnLevel),
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(s.out))
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if cfg.Alerts.Enabled && s.sender != nil {
		s.start.Do(s.startAlerts)
		sinks = append(sinks, alertWriter{s})
		if cfg.Alerts.ChatID == 0 {
			fmt.Fprintln(os.Stderr, "logx: alerts enabled without a chat id; nothing will be sent")
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(s.out))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close stops the alert worker and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	f, stop := s.file, s.stop
	s.file, s.stop = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		s.wg.Wait()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}
