package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reminderd/internal/task/engine"
	logx "reminderd/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		kind  SpecKind
		every time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron},
		{name: "descriptor", raw: "@every 1m", kind: SpecCron},
		{name: "duration", raw: "10m", kind: SpecInterval, every: 10 * time.Minute},
		{name: "prefixed interval", raw: "every:45s", kind: SpecInterval, every: 45 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if tt.kind == SpecInterval && got.Every != tt.every {
				t.Fatalf("Every = %v, want %v", got.Every, tt.every)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "every:10ms", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

type recordingEngine struct {
	mu    sync.Mutex
	tasks []engine.Task
	err   error
}

func (e *recordingEngine) Enqueue(t engine.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, t)
	return e.err
}

func TestAddScheduleRejectsBadCron(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, &recordingEngine{}, logx.Nop())
	if err := s.AddSchedule("dispatch", "61 * * * *", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected invalid cron error")
	}
}

func TestAddScheduleReplacesByName(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Timezone: "UTC"}, &recordingEngine{}, logx.Nop())
	job := func(context.Context) error { return nil }
	if err := s.AddSchedule("dispatch", "@every 1m", time.Minute, job); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())
	if err := s.AddSchedule("dispatch", "*/2 * * * *", time.Minute, job); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "*/2 * * * *" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if snap.Schedules[0].Next.IsZero() || snap.Timezone != "UTC" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !s.Remove("dispatch") || len(s.Snapshot().Schedules) != 0 {
		t.Fatal("Remove did not drop the schedule")
	}
}

func TestFiringEnqueuesWithOverlapSkip(t *testing.T) {
	t.Parallel()
	eng := &recordingEngine{err: engine.ErrOverlapSkip}
	s := New(Config{Enabled: true}, eng, logx.Nop())
	if err := s.AddSchedule("dispatch", "@every 1m", 5*time.Second, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.mu.Lock()
	d := s.defs[0]
	job := s.c.Entry(d.entryID).Job
	s.mu.Unlock()
	job.Run()

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if len(eng.tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(eng.tasks))
	}
	got := eng.tasks[0]
	if got.Name != "dispatch" || got.Timeout != 5*time.Second || got.Opt.Overlap != engine.OverlapSkipIfRunning || got.State != d.state {
		t.Fatalf("task = %+v", got)
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &recordingEngine{}, logx.Nop())
	s.Start(context.Background())
	if s.Snapshot().Enabled {
		t.Fatal("snapshot should report disabled")
	}
	s.mu.Lock()
	running := s.c != nil
	s.mu.Unlock()
	if running {
		t.Fatal("cron started while disabled")
	}
}

func TestStartupSpreadFirstRun(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 10, 24, 14, 0, 0, 0, time.UTC)
	sched, spread := makeIntervalScheduleWithSpread(time.Minute, now, "dispatch")
	if spread < 0 || spread >= 15*time.Second {
		t.Fatalf("spread = %v", spread)
	}
	if got := sched.Next(now); !got.Equal(now.Add(time.Minute + spread)) {
		t.Fatalf("first = %v", got)
	}
}

func TestReportEnqueueErrorThrottles(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &recordingEngine{}, logx.Nop())
	s.reportEnqueueError("dispatch", errors.New("queue full"))
	first := s.lastEnqWarn["dispatch"]
	s.reportEnqueueError("dispatch", errors.New("queue full"))
	if !s.lastEnqWarn["dispatch"].Equal(first) {
		t.Fatal("second warning within throttle window should not update timestamp")
	}
}
