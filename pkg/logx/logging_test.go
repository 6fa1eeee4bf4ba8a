package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(Component("dispatch"))
	log.Info("run finished", Int("sent", 3), Obligation("o-1"), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, buf.String())
	}
	if m["comp"] != "dispatch" || m["obligation"] != "o-1" || m["err"] != "boom" {
		t.Fatalf("record = %v", m)
	}
	if m["sent"] != float64(3) {
		t.Fatalf("sent = %v, want 3", m["sent"])
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q, want this file", c)
	}
}

func TestWriterLoggerLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "WARNING")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	log.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]zerolog.Level{
		"debug": zerolog.DebugLevel, " ERROR ": zerolog.ErrorLevel, "warning": zerolog.WarnLevel,
		"": zerolog.InfoLevel, "loud": zerolog.InfoLevel,
	} {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() || Nop().IsZero() {
		t.Fatal("only the zero logger should report IsZero")
	}
	l.Error("ignored")
}

func TestServiceApplyIsLive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, nil)
	t.Cleanup(func() { _ = svc.Close() })
	child := log.With(Component("planner"))

	child.Debug("hidden")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	child.Debug("shown")
	_ = svc.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "hidden") || !strings.Contains(string(b), `"comp":"planner"`) {
		t.Fatalf("log file = %s", b)
	}
}

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	sent  chan struct{}
}

func (r *recordingSender) SendText(_ context.Context, _ int64, _ int, text string) error {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	r.sent <- struct{}{}
	return nil
}

func TestAlertsForwardAboveMinLevel(t *testing.T) {
	snd := &recordingSender{sent: make(chan struct{}, 4)}
	svc, log := New(Config{Level: "debug", Alerts: AlertConfig{Enabled: true, ChatID: 42, MinLevel: "error", RatePerSec: 5}}, snd)
	t.Cleanup(func() { _ = svc.Close() })

	log.Warn("below threshold")
	log.Error("obligation failed", Obligation("o-1"))
	select {
	case <-snd.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("alert not sent")
	}
	snd.mu.Lock()
	defer snd.mu.Unlock()
	if len(snd.texts) != 1 || !strings.HasPrefix(snd.texts[0], "[ERROR] obligation failed") {
		t.Fatalf("alerts = %q", snd.texts)
	}
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()
	got := formatAlert([]byte(`{"level":"error","message":"obligation failed","obligation":"o-1","time":"x"}`))
	if !strings.HasPrefix(got, "[ERROR] obligation failed") {
		t.Fatalf("unexpected alert header: %q", got)
	}
	if !strings.Contains(got, "- obligation=o-1") {
		t.Fatalf("alert missing field: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("alert should skip time: %q", got)
	}
	if long := formatAlert([]byte(strings.Repeat("x", alertMaxLen+10))); len(long) != alertMaxLen {
		t.Fatalf("unparsed alert length = %d", len(long))
	}
}
