package delivery

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out provider calls.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NewPacer returns a token bucket that admits one call per interval.
// The first call passes immediately.
func NewPacer(interval time.Duration) Pacer {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// BatchOptions tune one batched send.
type BatchOptions struct {
	// Size is the email batch size. Ignored for SMS. Default 100.
	Size int
	// Pacer is waited on before every call.
	Pacer Pacer
	// CallTimeout bounds each adapter call. Zero means no extra bound.
	CallTimeout time.Duration
	// OnResult, if set, sees each call's clamped Result as soon as the
	// call returns without error.
	OnResult func(Result)
}

// BatchOutcome accumulates results across calls.
type BatchOutcome struct {
	Sent          int
	Failed        int
	EstimatedCost float64
	// Results holds one entry per adapter call that returned without error.
	Results []Result
	// Errors holds one message per failed call.
	Errors []string
}

func (o *BatchOutcome) add(n int, res Result, err error, label string, hook func(Result)) {
	if err != nil {
		o.Failed += n
		o.Errors = append(o.Errors, fmt.Sprintf("%s: %v", label, err))
		return
	}
	res = clampResult(res, n)
	o.Sent += res.Success
	o.Failed += res.Failure
	o.EstimatedCost += res.EstimatedCost
	o.Results = append(o.Results, res)
	if hook != nil {
		hook(res)
	}
}

// clampResult makes Success+Failure equal n; unreported messages count as failed.
func clampResult(r Result, n int) Result {
	r.Success = min(max(r.Success, 0), n)
	r.Failure = n - r.Success
	return r
}

// SendEmailBatches sends msgs in chunks of opts.Size.
// A failed chunk does not stop later chunks. If ctx ends, the remaining
// messages are counted as failed.
func SendEmailBatches(ctx context.Context, a EmailSender, msgs []EmailMessage, opts BatchOptions) BatchOutcome {
	size := opts.Size
	if size <= 0 {
		size = 100
	}
	var out BatchOutcome
	for start, n := 0, 1; start < len(msgs); start, n = start+size, n+1 {
		end := min(start+size, len(msgs))
		chunk := msgs[start:end]
		if err := wait(ctx, opts.Pacer); err != nil {
			out.add(len(msgs)-start, Result{}, err, fmt.Sprintf("batch %d", n), nil)
			return out
		}
		res, err := call(ctx, opts.CallTimeout, func(cctx context.Context) (Result, error) {
			return a.SendEmail(cctx, chunk)
		})
		out.add(len(chunk), res, err, fmt.Sprintf("batch %d", n), opts.OnResult)
	}
	return out
}

// SendSMSSerial sends msgs one per call.
func SendSMSSerial(ctx context.Context, a SMSSender, msgs []SMSMessage, opts BatchOptions) BatchOutcome {
	var out BatchOutcome
	for i := range msgs {
		if err := wait(ctx, opts.Pacer); err != nil {
			out.add(len(msgs)-i, Result{}, err, fmt.Sprintf("sms %d", i+1), nil)
			return out
		}
		one := msgs[i : i+1]
		res, err := call(ctx, opts.CallTimeout, func(cctx context.Context) (Result, error) {
			return a.SendSMS(cctx, one)
		})
		out.add(1, res, err, fmt.Sprintf("sms %d", i+1), opts.OnResult)
	}
	return out
}

func wait(ctx context.Context, p Pacer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	return p.Wait(ctx)
}

func call(ctx context.Context, timeout time.Duration, fn func(context.Context) (Result, error)) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
