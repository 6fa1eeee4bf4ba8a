package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type countingPacer struct{ n int }

func (p *countingPacer) Wait(ctx context.Context) error {
	p.n++
	return ctx.Err()
}

// scriptedEmail fails the calls whose 1-based index is in fail.
type scriptedEmail struct {
	calls []int
	fail  map[int]bool
}

func (s *scriptedEmail) SendEmail(_ context.Context, msgs []EmailMessage) (Result, error) {
	s.calls = append(s.calls, len(msgs))
	if s.fail[len(s.calls)] {
		return Result{}, errors.New("provider unavailable")
	}
	return Result{Success: len(msgs), EstimatedCost: float64(len(msgs)) * 0.01}, nil
}

func emails(n int) []EmailMessage {
	out := make([]EmailMessage, n)
	for i := range out {
		out[i] = EmailMessage{To: "x@example.com"}
	}
	return out
}

func TestSendEmailBatchesIsolatesFailures(t *testing.T) {
	t.Parallel()
	a := &scriptedEmail{fail: map[int]bool{2: true}}
	p := &countingPacer{}

	out := SendEmailBatches(context.Background(), a, emails(250), BatchOptions{Size: 100, Pacer: p})

	if got := a.calls; len(got) != 3 || got[0] != 100 || got[1] != 100 || got[2] != 50 {
		t.Fatalf("calls = %v, want [100 100 50]", got)
	}
	if out.Sent != 150 || out.Failed != 100 {
		t.Fatalf("Sent/Failed = %d/%d, want 150/100", out.Sent, out.Failed)
	}
	if p.n != 3 {
		t.Fatalf("pacer waits = %d, want 3", p.n)
	}
	if len(out.Errors) != 1 || !strings.HasPrefix(out.Errors[0], "batch 2") {
		t.Fatalf("Errors = %v", out.Errors)
	}
	if len(out.Results) != 2 {
		t.Fatalf("Results = %d, want 2", len(out.Results))
	}
}

func TestOnResultSeesEachSuccessfulCall(t *testing.T) {
	t.Parallel()
	a := &scriptedEmail{fail: map[int]bool{2: true}}
	var seen []Result
	SendEmailBatches(context.Background(), a, emails(5), BatchOptions{
		Size:     2,
		OnResult: func(r Result) { seen = append(seen, r) },
	})
	if len(seen) != 2 || seen[0].Success != 2 || seen[1].Success != 1 {
		t.Fatalf("seen = %+v, want calls 1 and 3", seen)
	}
}

func TestSendEmailBatchesDefaultSize(t *testing.T) {
	t.Parallel()
	a := &scriptedEmail{}
	out := SendEmailBatches(context.Background(), a, emails(101), BatchOptions{})
	if len(a.calls) != 2 || out.Sent != 101 {
		t.Fatalf("calls = %v, sent = %d", a.calls, out.Sent)
	}
}

func TestSendEmailBatchesCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	a := &cancelAfterFirst{cancel: cancel}
	out := SendEmailBatches(ctx, a, emails(30), BatchOptions{Size: 10, Pacer: &countingPacer{}})
	if a.n != 1 {
		t.Fatalf("calls = %d, want 1", a.n)
	}
	if out.Sent != 10 || out.Failed != 20 {
		t.Fatalf("Sent/Failed = %d/%d, want 10/20", out.Sent, out.Failed)
	}
}

type cancelAfterFirst struct {
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfterFirst) SendEmail(_ context.Context, msgs []EmailMessage) (Result, error) {
	c.n++
	c.cancel()
	return Result{Success: len(msgs)}, nil
}

type smsFunc func(ctx context.Context, msgs []SMSMessage) (Result, error)

func (f smsFunc) SendSMS(ctx context.Context, msgs []SMSMessage) (Result, error) { return f(ctx, msgs) }

func TestSendSMSSerial(t *testing.T) {
	t.Parallel()
	calls := 0
	a := smsFunc(func(_ context.Context, msgs []SMSMessage) (Result, error) {
		calls++
		if len(msgs) != 1 {
			t.Errorf("batch len = %d, want 1", len(msgs))
		}
		if calls == 2 {
			return Result{Failure: 1}, nil
		}
		return Result{Success: 1}, nil
	})
	p := &countingPacer{}
	out := SendSMSSerial(context.Background(), a, make([]SMSMessage, 3), BatchOptions{Pacer: p})
	if out.Sent != 2 || out.Failed != 1 || calls != 3 || p.n != 3 {
		t.Fatalf("out = %+v calls=%d waits=%d", out, calls, p.n)
	}
}

func TestCallTimeoutCountsAsFailure(t *testing.T) {
	t.Parallel()
	a := smsFunc(func(ctx context.Context, _ []SMSMessage) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
	out := SendSMSSerial(context.Background(), a, make([]SMSMessage, 1), BatchOptions{CallTimeout: time.Millisecond})
	if out.Failed != 1 || len(out.Errors) != 1 {
		t.Fatalf("out = %+v", out)
	}
}

func TestClampResult(t *testing.T) {
	t.Parallel()
	if r := clampResult(Result{Success: 5}, 3); r.Success != 3 || r.Failure != 0 {
		t.Fatalf("clamp over = %+v", r)
	}
	if r := clampResult(Result{Success: 1}, 3); r.Failure != 2 {
		t.Fatalf("clamp under = %+v", r)
	}
}

func TestNewPacerFirstCallImmediate(t *testing.T) {
	t.Parallel()
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	// The second token is an hour away; Wait fails fast because it exceeds the deadline.
	if err := p.Wait(ctx); err == nil {
		t.Fatal("second Wait should not fit in the deadline")
	}
}
