package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
)

// Dispatch is DispatchConfig with defaults applied and durations parsed.
type Dispatch struct {
	Lookahead          time.Duration
	MaxPerRun          int
	EmailBatchSize     int
	EmailBatchInterval time.Duration
	SMSInterval        time.Duration
	CallTimeout        time.Duration
	StuckAfter         time.Duration
	MaxErrors          int
}

func (c DispatchConfig) Resolve() (Dispatch, error) {
	var (
		d   Dispatch
		err error
	)
	if d.Lookahead, err = ParseDurationOrDefault("dispatch.lookahead", c.Lookahead, 5*time.Minute); err != nil {
		return d, err
	}
	if d.EmailBatchInterval, err = ParseDurationOrDefault("dispatch.email_batch_interval", c.EmailBatchInterval, time.Second); err != nil {
		return d, err
	}
	if d.SMSInterval, err = ParseDurationOrDefault("dispatch.sms_interval", c.SMSInterval, 100*time.Millisecond); err != nil {
		return d, err
	}
	if d.CallTimeout, err = ParseDurationOrDefault("dispatch.call_timeout", c.CallTimeout, 30*time.Second); err != nil {
		return d, err
	}
	if d.StuckAfter, err = ParseDurationOrDefault("dispatch.stuck_after", c.StuckAfter, 30*time.Minute); err != nil {
		return d, err
	}
	d.MaxPerRun = positiveOr(c.MaxPerRun, 200)
	d.EmailBatchSize = positiveOr(c.EmailBatchSize, 100)
	d.MaxErrors = positiveOr(c.MaxErrors, 20)
	return d, nil
}

// TaskEngine is TaskEngineConfig with defaults applied.
type TaskEngine struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	HistorySize    int
	RetryMax       int
}

func (c *TaskEngineConfig) Resolve() (TaskEngine, error) {
	var te TaskEngineConfig
	if c != nil {
		te = *c
	}
	timeout, err := ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return TaskEngine{}, err
	}
	if te.RetryMax < 0 {
		return TaskEngine{}, errors.New("task_engine.retry_max must be >= 0")
	}
	return TaskEngine{
		Workers:        positiveOr(te.Workers, 1),
		QueueSize:      positiveOr(te.QueueSize, 16),
		DefaultTimeout: timeout,
		HistorySize:    positiveOr(te.HistorySize, 50),
		RetryMax:       te.RetryMax,
	}, nil
}

// Validate checks fields that can be checked without touching the network.
// ConfigManager.Watch runs it before publishing a reloaded config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := cfg.Dispatch.Resolve(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.TaskEngine.Resolve(); err != nil {
		errs = append(errs, err)
	}
	for path, raw := range map[string]string{
		"server.read_timeout":     cfg.Server.ReadTimeout,
		"server.write_timeout":    cfg.Server.WriteTimeout,
		"server.shutdown_timeout": cfg.Server.ShutdownTimeout,
		"server.run_timeout":      cfg.Server.RunTimeout,
		"scheduler.timeout":       cfg.Scheduler.Timeout,
		"storage.busy_timeout":    cfg.Storage.BusyTimeout,
		"links.ttl":               cfg.Links.TTL,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", cfg.Storage.Driver))
	}
	if tz := strings.TrimSpace(cfg.Render.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("render.timezone: %w", err))
		}
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if cc := cfg.Recipient.DefaultCountryCode; cc != "" {
		n, err := strconv.Atoi(cc)
		switch {
		case err != nil || strings.ContainsAny(cc, "+-"):
			errs = append(errs, errors.New("recipient.default_country_code must be digits only"))
		case phonenumbers.GetRegionCodeForCountryCode(n) == "ZZ":
			errs = append(errs, fmt.Errorf("recipient.default_country_code %q is not a known calling code", cc))
		}
	}
	return errors.Join(errs...)
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}
