package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reminderd/internal/config"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := `
logging:
  level: error
server:
  addr: "127.0.0.1:0"
  cron_secret: test-secret
storage:
  driver: sqlite
  path: ` + filepath.Join(dir, "reminderd.db") + `
` + extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMapDispatchOptions(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Dispatch:  config.DispatchConfig{EmailBatchSize: 25},
		Render:    config.RenderConfig{Timezone: "America/New_York"},
		Recipient: config.RecipientConfig{DefaultCountryCode: "254"},
	}
	opts, err := mapDispatchOptions(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if opts.EmailBatchSize != 25 || opts.Lookahead != 5*time.Minute || opts.MaxPerRun != 200 {
		t.Fatalf("dispatch = %+v", opts.Dispatch)
	}
	if opts.Location.String() != "America/New_York" || opts.Filter.DefaultCountryCode != "254" {
		t.Fatalf("location = %v filter = %+v", opts.Location, opts.Filter)
	}

	cfg.Render.Timezone = "Mars/Olympus"
	if _, err := mapDispatchOptions(cfg); err == nil {
		t.Fatal("expected bad timezone error")
	}
}

func TestScheduleSpec(t *testing.T) {
	t.Parallel()
	spec, timeout, err := scheduleSpec(&config.Config{})
	if err != nil || spec != defaultScheduleSpec || timeout != 10*time.Minute {
		t.Fatalf("spec = %q timeout = %v err = %v", spec, timeout, err)
	}
	if _, _, err := scheduleSpec(&config.Config{Scheduler: config.SchedulerConfig{Spec: "whenever"}}); err == nil {
		t.Fatal("expected invalid spec error")
	}
}

func TestNewSignerDisabledWithoutSecret(t *testing.T) {
	t.Parallel()
	s, err := newSigner(&config.Config{Links: config.LinksConfig{BaseURL: "https://example.com"}})
	if err != nil || s != nil {
		t.Fatalf("signer = %v err = %v", s, err)
	}
	s, err = newSigner(&config.Config{Links: config.LinksConfig{BaseURL: "https://example.com", Secret: "k", TTL: "24h"}})
	if err != nil || s == nil {
		t.Fatalf("signer = %v err = %v", s, err)
	}
}

func TestMapLogConfigCarriesChatID(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Logging:  config.LoggingConfig{Level: "warn", Telegram: config.LoggingTelegram{Enabled: true, ThreadID: 3}},
		Telegram: config.TelegramConfig{ChatID: -100123},
	}
	lc := mapLogConfig(cfg)
	if lc.Level != "warn" || !lc.Alerts.Enabled || lc.Alerts.ChatID != -100123 || lc.Alerts.ThreadID != 3 {
		t.Fatalf("log config = %+v", lc)
	}
}

func TestNewServesTrigger(t *testing.T) {
	a, err := New(context.Background(), writeConfig(t, ""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.close()

	req := httptest.NewRequest(http.MethodPost, "/api/cron/send-notifications", nil)
	req.Header.Set("Authorization", "Bearer test-secret")
	w := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var sum map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum["processed"] != float64(0) {
		t.Fatalf("summary = %v", sum)
	}
}

func TestScheduledRunCutShortIsNotRetried(t *testing.T) {
	a, err := New(context.Background(), writeConfig(t, ""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = a.runScheduled(ctx)
	if !errors.Is(err, context.Canceled) || !strings.HasPrefix(err.Error(), "permanent: ") {
		t.Fatalf("err = %v, want a permanent cancellation", err)
	}
	if err := a.runScheduled(context.Background()); err != nil {
		t.Fatalf("live run: %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), writeConfig(t, "dispatch:\n  lookahead: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "dispatch.lookahead") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), writeConfig(t, "scheduler:\n  enabled: true\n  spec: \"@every 1h\"\n"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if snap := a.sched.Snapshot(); !snap.Enabled || len(snap.Schedules) != 1 {
		t.Fatalf("scheduler snapshot = %+v", snap)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStateReportsDispatchSchedule(t *testing.T) {
	a, err := New(context.Background(), writeConfig(t, ""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.close()
	st, ok := a.state().(runtimeState)
	if !ok {
		t.Fatalf("state type = %T", a.state())
	}
	if len(st.Scheduler.Schedules) != 1 || st.Scheduler.Schedules[0].Name != dispatchTaskName {
		t.Fatalf("schedules = %+v", st.Scheduler.Schedules)
	}
	if st.Engine.Workers != 1 {
		t.Fatalf("engine workers = %d", st.Engine.Workers)
	}
}
