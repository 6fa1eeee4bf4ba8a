package app

import (
	"errors"
	"strings"
	"time"

	"reminderd/internal/config"
	"reminderd/internal/delivery"
	"reminderd/internal/dispatch"
	"reminderd/internal/links"
	"reminderd/internal/observability/debug"
	"reminderd/internal/recipient"
	"reminderd/internal/server"
	"reminderd/internal/storage"
	"reminderd/internal/task/engine"
	"reminderd/internal/task/scheduler"
	logx "reminderd/pkg/logx"
)

const defaultScheduleSpec = "@every 1m"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alerts: logx.AlertConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.ChatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

func mapProviderConfig(cfg *config.Config) delivery.DefaultConfig {
	p := cfg.Provider
	return delivery.DefaultConfig{
		SMTP: delivery.SMTPConfig{
			Host:        p.SMTP.Host,
			Port:        p.SMTP.Port,
			Username:    p.SMTP.Username,
			Password:    p.SMTP.Password,
			From:        p.SMTP.From,
			FromName:    p.SMTP.FromName,
			ImplicitTLS: p.SMTP.ImplicitTLS,
		},
		Gateway: delivery.GatewayConfig{
			Endpoint:       p.SMS.Endpoint,
			Username:       p.SMS.Username,
			APIKey:         p.SMS.APIKey,
			SenderID:       p.SMS.SenderID,
			CostPerMessage: p.SMS.CostPerMessage,
		},
	}
}

func mapDispatchOptions(cfg *config.Config) (dispatch.Options, error) {
	d, err := cfg.Dispatch.Resolve()
	if err != nil {
		return dispatch.Options{}, err
	}
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Render.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return dispatch.Options{}, err
		}
	}
	return dispatch.Options{
		Dispatch: d,
		Location: loc,
		Filter:   recipient.Filter{DefaultCountryCode: cfg.Recipient.DefaultCountryCode},
	}, nil
}

func mapServerOptions(cfg *config.Config) (server.Options, error) {
	runTimeout, err := config.ParseDurationField("server.run_timeout", cfg.Server.RunTimeout)
	if err != nil {
		return server.Options{}, err
	}
	return server.Options{CronSecret: cfg.Server.CronSecret, RunTimeout: runTimeout}, nil
}

// httpTimeouts are the listener settings; they apply on restart only.
type httpTimeouts struct {
	read, write, shutdown time.Duration
}

func mapHTTPTimeouts(cfg *config.Config) (httpTimeouts, error) {
	var (
		t   httpTimeouts
		err error
	)
	if t.read, err = config.ParseDurationOrDefault("server.read_timeout", cfg.Server.ReadTimeout, 15*time.Second); err != nil {
		return t, err
	}
	// A run can take minutes; WriteTimeout must outlast it.
	if t.write, err = config.ParseDurationOrDefault("server.write_timeout", cfg.Server.WriteTimeout, 10*time.Minute); err != nil {
		return t, err
	}
	if t.shutdown, err = config.ParseDurationOrDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout, 15*time.Second); err != nil {
		return t, err
	}
	return t, nil
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	te, err := cfg.TaskEngine.Resolve()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: te.DefaultTimeout,
		HistorySize:    te.HistorySize,
		RetryMax:       te.RetryMax,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

// scheduleSpec returns the trigger schedule and per-run timeout.
func scheduleSpec(cfg *config.Config) (string, time.Duration, error) {
	spec := strings.TrimSpace(cfg.Scheduler.Spec)
	if spec == "" {
		spec = defaultScheduleSpec
	}
	if _, err := scheduler.ParseSchedule(spec); err != nil {
		return "", 0, err
	}
	timeout, err := config.ParseDurationOrDefault("scheduler.timeout", cfg.Scheduler.Timeout, 10*time.Minute)
	return spec, timeout, err
}

// newSigner returns nil when links are not configured.
func newSigner(cfg *config.Config) (*links.Signer, error) {
	ttl, err := config.ParseDurationField("links.ttl", cfg.Links.TTL)
	if err != nil {
		return nil, err
	}
	s, err := links.NewSigner(cfg.Links.BaseURL, cfg.Links.Secret, ttl)
	if errors.Is(err, links.ErrDisabled) {
		return nil, nil
	}
	return s, err
}

func mapDebugConfig(cfg *config.Config) debug.Config {
	return debug.Config{Enabled: cfg.Debug.Enabled, Addr: cfg.Debug.Addr, Token: cfg.Debug.Token}
}
