package config

import (
	"reflect"

	logx "reminderd/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Secrets are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.lookahead", newCfg.Dispatch.Lookahead),
			logx.Int("dispatch.max_per_run", newCfg.Dispatch.MaxPerRun),
			logx.Int("dispatch.email_batch_size", newCfg.Dispatch.EmailBatchSize),
			logx.String("dispatch.email_batch_interval", newCfg.Dispatch.EmailBatchInterval),
			logx.String("dispatch.sms_interval", newCfg.Dispatch.SMSInterval),
			logx.String("dispatch.call_timeout", newCfg.Dispatch.CallTimeout),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) || !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.spec", newCfg.Scheduler.Spec),
		)
	}

	if oldCfg.Render != newCfg.Render || oldCfg.Recipient != newCfg.Recipient {
		changed = append(changed, "audience")
		attrs = append(attrs,
			logx.String("render.timezone", newCfg.Render.Timezone),
			logx.String("recipient.default_country_code", newCfg.Recipient.DefaultCountryCode),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
		)
	}

	// cron_secret and run_timeout apply live; the listener settings do not.
	oldSrv, newSrv := oldCfg.Server, newCfg.Server
	if oldSrv != newSrv {
		changed = append(changed, "server")
		oldSrv.CronSecret, oldSrv.RunTimeout = "", ""
		newSrv.CronSecret, newSrv.RunTimeout = "", ""
		if oldSrv != newSrv {
			attrs = append(attrs, logx.Bool("server.restart_required", true))
		}
	}

	// Sections below need a restart; report that they changed without values.
	restart := map[string]bool{
		"storage":  !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage),
		"provider": !reflect.DeepEqual(oldCfg.Provider, newCfg.Provider),
		"links":    !reflect.DeepEqual(oldCfg.Links, newCfg.Links),
		"secrets":  oldCfg.Secrets != newCfg.Secrets,
		"telegram": oldCfg.Telegram != newCfg.Telegram,
	}
	for _, name := range []string{"storage", "provider", "links", "secrets", "telegram"} {
		if restart[name] {
			changed = append(changed, name)
			attrs = append(attrs, logx.Bool(name+".restart_required", true))
		}
	}
	return changed, attrs
}
