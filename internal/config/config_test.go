package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
server:
  addr: ":8080"
dispatch:
  lookahead: 10m
  email_batch_size: 50
storage:
  driver: sqlite
  path: ./data/reminderd.db
render:
  timezone: UTC
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Dispatch.EmailBatchSize != 50 {
		t.Fatalf("EmailBatchSize = %d, want 50", cfg.Dispatch.EmailBatchSize)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Decode("config.json", []byte(`{"dispatch":{"lookahed":"5m"}}`))
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("err = %v, want unknown field", err)
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	t.Parallel()
	if _, err := Decode("config.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestDispatchResolveDefaults(t *testing.T) {
	t.Parallel()
	d, err := DispatchConfig{}.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Lookahead != 5*time.Minute {
		t.Fatalf("Lookahead = %v, want 5m", d.Lookahead)
	}
	if d.EmailBatchSize != 100 || d.MaxPerRun != 200 || d.MaxErrors != 20 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if d.EmailBatchInterval != time.Second || d.SMSInterval != 100*time.Millisecond {
		t.Fatalf("unexpected pacing defaults: %+v", d)
	}
	if d.CallTimeout != 30*time.Second || d.StuckAfter != 30*time.Minute {
		t.Fatalf("unexpected timeouts: %+v", d)
	}
}

func TestValidateCountryCode(t *testing.T) {
	t.Parallel()
	for cc, ok := range map[string]bool{"1": true, "254": true, "999": false, "+1": false, "-1": false} {
		err := Validate(&Config{Recipient: RecipientConfig{DefaultCountryCode: cc}})
		if got := err == nil || !strings.Contains(err.Error(), "default_country_code"); got != ok {
			t.Fatalf("country code %q accepted = %v, want %v (err %v)", cc, got, ok, err)
		}
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Dispatch:  DispatchConfig{Lookahead: "soon"},
		Storage:   StorageConfig{Driver: "postgres"},
		Recipient: RecipientConfig{DefaultCountryCode: "+1"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"dispatch.lookahead", "storage.driver", "default_country_code"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("err %q missing %q", err, want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		EnvCronSecret: " s3cret ",
		EnvSecretsKey: "",
	}
	cfg := &Config{Secrets: SecretsConfig{Key: "from-file"}}
	ApplyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Server.CronSecret != "s3cret" {
		t.Fatalf("CronSecret = %q, want s3cret", cfg.Server.CronSecret)
	}
	if cfg.Secrets.Key != "from-file" {
		t.Fatalf("empty env must not override: Key = %q", cfg.Secrets.Key)
	}
}

func TestManagerLoadAndPublish(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	m.SetEnvLookup(func(k string) (string, bool) {
		if k == EnvCronSecret {
			return "abc", true
		}
		return "", false
	})
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.CronSecret != "abc" || m.Get() != cfg {
		t.Fatalf("unexpected committed config: %+v", cfg.Server)
	}

	ch := m.Subscribe(1)
	m.publish(&Config{})
	next := &Config{Server: ServerConfig{Addr: ":9"}}
	m.publish(next)
	if got := <-ch; got != next {
		t.Fatalf("subscriber got %+v, want newest config", got)
	}
	m.Unsubscribe(ch)
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Dispatch: DispatchConfig{EmailBatchSize: 100}, Secrets: SecretsConfig{Key: "a"}}
	newCfg := &Config{Dispatch: DispatchConfig{EmailBatchSize: 10}, Secrets: SecretsConfig{Key: "b"}}
	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "dispatch,secrets" {
		t.Fatalf("changed = %v", changed)
	}
}

func TestSummarizeServerSecretRotationIsLive(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Server: ServerConfig{Addr: ":8080", CronSecret: "a"}}
	newCfg := &Config{Server: ServerConfig{Addr: ":8080", CronSecret: "b"}}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "server" || len(attrs) != 0 {
		t.Fatalf("changed = %v attrs = %d", changed, len(attrs))
	}

	newCfg.Server.Addr = ":9090"
	if _, attrs := SummarizeConfigChange(oldCfg, newCfg); len(attrs) != 1 {
		t.Fatalf("addr change should flag restart, attrs = %d", len(attrs))
	}
}
