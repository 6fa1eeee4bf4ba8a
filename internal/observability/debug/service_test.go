package debug

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	logx "reminderd/pkg/logx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:6060": true,
		"[::1]:6060":     true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.5:6060":  false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestRefusesPublicBindWithoutToken(t *testing.T) {
	t.Parallel()
	s := New(nil, logx.Nop())
	if err := s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "0.0.0.0:0"}); err == nil {
		s.Stop(context.Background())
		t.Fatal("expected refusal")
	}
}

func TestStateAndAuth(t *testing.T) {
	t.Parallel()
	s := New(func() any { return map[string]int{"queue_len": 3} }, logx.Nop())
	if err := s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0", Token: "tok"}); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())
	base := "http://" + s.Addr()

	resp, err := http.Get(base + "/debug/state")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/debug/state?token=tok")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["queue_len"] != 3 {
		t.Fatalf("state = %v", got)
	}
}

func TestReconfigureDisableStops(t *testing.T) {
	t.Parallel()
	s := New(nil, logx.Nop())
	if err := s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0"}); err != nil {
		t.Fatal(err)
	}
	if s.Addr() == "" {
		t.Fatal("listener not started")
	}
	if err := s.Reconfigure(context.Background(), Config{}); err != nil {
		t.Fatal(err)
	}
	if s.Addr() != "" {
		t.Fatal("listener still running")
	}
}

func TestPprofHeapServed(t *testing.T) {
	t.Parallel()
	s := New(nil, logx.Nop())
	if err := s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0"}); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())
	resp, err := http.Get("http://" + s.Addr() + "/debug/pprof/heap")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
