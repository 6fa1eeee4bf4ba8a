package config

// Config is the on-disk reminderd configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets may be left empty in the file and supplied through the environment
// (see ApplyEnv).
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Server  ServerConfig  `json:"server"`

	// Scheduler controls the optional in-process trigger.
	// Deployments driven by an external cron leave it disabled.
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of scheduler-triggered runs.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Dispatch  DispatchConfig  `json:"dispatch"`
	Storage   StorageConfig   `json:"storage"`
	Provider  ProviderConfig  `json:"provider"`
	Links     LinksConfig     `json:"links"`
	Secrets   SecretsConfig   `json:"secrets"`
	Render    RenderConfig    `json:"render"`
	Recipient RecipientConfig `json:"recipient"`
	Telegram  TelegramConfig  `json:"telegram"`
	Debug     DebugConfig     `json:"debug"`
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

// ServerConfig controls the HTTP surface.
//
// CronSecret guards the trigger endpoint. Empty means every call is rejected.
type ServerConfig struct {
	Addr            string `json:"addr"`
	CronSecret      string `json:"cron_secret,omitempty"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	// RunTimeout bounds one HTTP-triggered dispatch run.
	RunTimeout string `json:"run_timeout,omitempty"`
}

// SchedulerConfig controls the in-process trigger.
//
// Spec is a cron expression with optional seconds field, or a descriptor
// such as "@every 1m". Defaults to "@every 1m".
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	// Timeout bounds one scheduled run. "0s" disables it.
	Timeout string `json:"timeout,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 1
//   - queue_size: 16
//   - default_timeout: "0s" (disabled)
//   - history_size: 50
//   - retry_max: 0
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// DispatchConfig tunes the delivery orchestrator. Hot-reloadable.
//
// Defaults:
//   - lookahead: "5m"
//   - max_per_run: 200
//   - email_batch_size: 100
//   - email_batch_interval: "1s"
//   - sms_interval: "100ms"
//   - call_timeout: "30s"
//   - stuck_after: "30m"
//   - max_errors: 20
type DispatchConfig struct {
	Lookahead          string `json:"lookahead,omitempty"`
	MaxPerRun          int    `json:"max_per_run,omitempty"`
	EmailBatchSize     int    `json:"email_batch_size,omitempty"`
	EmailBatchInterval string `json:"email_batch_interval,omitempty"`
	SMSInterval        string `json:"sms_interval,omitempty"`
	CallTimeout        string `json:"call_timeout,omitempty"`
	StuckAfter         string `json:"stuck_after,omitempty"`
	MaxErrors          int    `json:"max_errors,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/reminderd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ProviderConfig is the platform's default delivery provider.
type ProviderConfig struct {
	SMTP SMTPConfig       `json:"smtp"`
	SMS  SMSGatewayConfig `json:"sms"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	FromName string `json:"from_name,omitempty"`
	From     string `json:"from"`
	// ImplicitTLS dials TLS directly (port 465). Otherwise STARTTLS is attempted.
	ImplicitTLS bool `json:"implicit_tls,omitempty"`
}

// SMSGatewayConfig describes a form-post SMS HTTP gateway.
type SMSGatewayConfig struct {
	Endpoint       string  `json:"endpoint"`
	Username       string  `json:"username,omitempty"`
	APIKey         string  `json:"api_key,omitempty"` // do not log
	SenderID       string  `json:"sender_id,omitempty"`
	CostPerMessage float64 `json:"cost_per_message,omitempty"`
}

// LinksConfig controls signed unsubscribe/watch URLs.
type LinksConfig struct {
	BaseURL string `json:"base_url"`
	Secret  string `json:"secret,omitempty"` // do not log
	TTL     string `json:"ttl,omitempty"`
}

// SecretsConfig holds the key used to open sealed integration credentials.
// Key is base64 (std encoding) of 32 random bytes.
type SecretsConfig struct {
	Key string `json:"key,omitempty"` // do not log
}

type RenderConfig struct {
	// Timezone for human-readable dates in templates. Default "UTC".
	Timezone string `json:"timezone,omitempty"`
}

type RecipientConfig struct {
	// DefaultCountryCode is prepended to local phone numbers, digits only (e.g. "1", "254").
	DefaultCountryCode string `json:"default_country_code,omitempty"`
}

// TelegramConfig configures the operator alert bot used by the logging sink.
type TelegramConfig struct {
	Token  string `json:"token,omitempty"` // do not log
	ChatID int64  `json:"chat_id,omitempty"`
}

// DebugConfig controls the operator listener (pprof and task state).
// Addr defaults to "127.0.0.1:6060"; a non-loopback addr requires Token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"` // do not log
}
