// Package dispatch runs due reminder obligations through resolution,
// rendering and delivery, and records their outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"reminderd/internal/config"
	"reminderd/internal/delivery"
	"reminderd/internal/domain"
	"reminderd/internal/metrics"
	"reminderd/internal/recipient"
	"reminderd/internal/render"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	ListDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Obligation, error)
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	Finish(ctx context.Context, id string, out storage.Outcome, now time.Time) error
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	IncrementNotificationsSent(ctx context.Context, eventID string, n int) error
	RecordIntegrationUsage(ctx context.Context, u domain.UsageLog) error
	CountStuck(ctx context.Context, updatedBefore time.Time) (int, error)
}

type Resolver interface {
	Resolve(ctx context.Context, ev domain.Event) (recipient.Resolution, error)
}

// Links builds per-recipient URLs. *links.Signer implements it.
type Links interface {
	WatchURL(eventID string, r domain.Recipient) string
	UnsubscribeURL(eventID string, r domain.Recipient) string
}

// Options are the hot-reloadable knobs of a run.
type Options struct {
	config.Dispatch
	// Location is used for dates in rendered messages. Nil means UTC.
	Location *time.Location
	Filter   recipient.Filter
}

type Deps struct {
	Store    Store
	Resolver Resolver
	Adapters Adapters
	Links    Links
	Metrics  *metrics.Metrics
	Log      logx.Logger
}

// Summary is the result of one run, returned to the trigger caller.
type Summary struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
	// ErrorsOmitted counts messages dropped once Errors reached its bound.
	ErrorsOmitted int `json:"errors_omitted,omitempty"`
}

func (s *Summary) addError(limit int, msg string) {
	if len(s.Errors) >= limit {
		s.ErrorsOmitted++
		return
	}
	s.Errors = append(s.Errors, msg)
}

type outcomeKind int

const (
	outcomeDelivered outcomeKind = iota
	outcomeEmpty
	outcomeFailed
)

type obligationOutcome struct {
	Kind       outcomeKind
	Recipients int
	Sent       int
	Failed     int
	Details    *domain.ErrorDetails
}

func (out obligationOutcome) status() domain.Status {
	switch out.Kind {
	case outcomeEmpty:
		return domain.StatusSent
	case outcomeFailed:
		return domain.StatusFailed
	}
	if out.Sent == 0 && out.Failed > 0 {
		return domain.StatusFailed
	}
	return domain.StatusSent
}

// note keeps the first classified error and accumulates batch errors.
func (out *obligationOutcome) note(code domain.ErrorCode, ch domain.Channel, msg string, batchErrs ...string) {
	if out.Details == nil {
		out.Details = &domain.ErrorDetails{Code: code, Message: msg, Channel: ch}
	}
	for _, e := range batchErrs {
		out.Details.BatchErrors = append(out.Details.BatchErrors, string(ch)+" "+e)
	}
}

func failedOutcome(err *Error) obligationOutcome {
	return obligationOutcome{
		Kind:    outcomeFailed,
		Details: &domain.ErrorDetails{Code: err.Code, Message: err.Error()},
	}
}

// route is the adapter chosen for one channel. err is set when no adapter
// could be built; every target of that channel then counts as failed.
type route struct {
	adapter delivery.Adapter
	integ   *domain.Integration
	err     error
}

// Orchestrator processes due obligations one at a time.
type Orchestrator struct {
	store    Store
	resolver Resolver
	adapters Adapters
	links    Links
	metrics  *metrics.Metrics
	log      logx.Logger

	opts atomic.Pointer[Options]

	now      func() time.Time
	newID    func() string
	newPacer func(time.Duration) delivery.Pacer
}

func New(deps Deps, opts Options) *Orchestrator {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	o := &Orchestrator{
		store:    deps.Store,
		resolver: deps.Resolver,
		adapters: deps.Adapters,
		links:    deps.Links,
		metrics:  deps.Metrics,
		log:      log.With(logx.Component("dispatch")),
		now:      time.Now,
		newID:    uuid.NewString,
		newPacer: delivery.NewPacer,
	}
	o.SetOptions(opts)
	return o
}

// SetOptions swaps run options. Runs already in progress keep their copy.
func (o *Orchestrator) SetOptions(opts Options) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	opts.MaxPerRun = max(opts.MaxPerRun, 1)
	opts.MaxErrors = max(opts.MaxErrors, 1)
	o.opts.Store(&opts)
}

func (o *Orchestrator) Options() Options { return *o.opts.Load() }

// pacers are shared by every obligation in one run so provider throughput
// is limited per run, not per obligation.
type pacers struct {
	email delivery.Pacer
	sms   delivery.Pacer
}

// Run selects due obligations and processes them in scheduled order.
// Only a failed selection is returned as an error; per-obligation failures
// are reported in the summary.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	opts := o.Options()
	sum := Summary{Errors: []string{}}
	start := o.now().UTC()

	due, err := o.store.ListDue(ctx, start.Add(opts.Lookahead), opts.MaxPerRun)
	if err != nil {
		return sum, fmt.Errorf("select due obligations: %w", err)
	}
	p := pacers{email: o.newPacer(opts.EmailBatchInterval), sms: o.newPacer(opts.SMSInterval)}

	for _, ob := range due {
		if ctx.Err() != nil {
			o.log.Warn("run canceled; leaving remaining obligations scheduled", logx.Int("remaining", len(due)-sum.Processed-sum.Skipped))
			break
		}
		claimed, err := o.store.Claim(ctx, ob.ID, o.now().UTC())
		if err != nil {
			o.log.Error("claim failed", logx.Obligation(ob.ID), logx.Err(err))
			sum.addError(opts.MaxErrors, fmt.Sprintf("%s: claim: %v", ob.ID, err))
			continue
		}
		if !claimed {
			sum.Skipped++
			o.metrics.Obligation("skipped")
			o.log.Debug("obligation already claimed", logx.Obligation(ob.ID))
			continue
		}
		sum.Processed++

		out := o.process(ctx, ob, opts, p)
		status, err := o.record(ctx, ob, out)
		sum.Sent += out.Sent
		sum.Failed += out.Failed
		if out.Details != nil {
			sum.addError(opts.MaxErrors, fmt.Sprintf("%s: %s", ob.ID, out.Details.Message))
		}
		if err != nil {
			sum.addError(opts.MaxErrors, fmt.Sprintf("%s: record: %v", ob.ID, err))
		}

		fields := []logx.Field{
			logx.Obligation(ob.ID),
			logx.Event(ob.EventID),
			logx.String("stage", string(ob.Stage)),
			logx.String("status", string(status)),
			logx.Int("recipients", out.Recipients),
			logx.Int("sent", out.Sent),
			logx.Int("failed", out.Failed),
		}
		if status == domain.StatusFailed {
			if out.Details != nil {
				fields = append(fields, logx.String("code", string(out.Details.Code)))
			}
			o.log.Error("obligation failed", fields...)
		} else {
			o.log.Info("obligation sent", fields...)
		}
	}

	o.flagStuck(ctx, start, opts)
	return sum, nil
}

func (o *Orchestrator) flagStuck(ctx context.Context, now time.Time, opts Options) {
	if opts.StuckAfter <= 0 {
		return
	}
	n, err := o.store.CountStuck(context.WithoutCancel(ctx), now.Add(-opts.StuckAfter))
	if err != nil {
		o.log.Warn("stuck obligation check failed", logx.Err(err))
		return
	}
	o.metrics.SetStuck(n)
	if n > 0 {
		o.log.Warn("obligations stuck in sending", logx.Int("count", n), logx.Duration("older_than", opts.StuckAfter))
	}
}

// process never panics; a panic becomes an internal failure.
func (o *Orchestrator) process(ctx context.Context, ob domain.Obligation, opts Options, p pacers) (out obligationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("obligation panic",
				logx.Obligation(ob.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			out.Kind = outcomeFailed
			out.Details = &domain.ErrorDetails{Code: domain.CodeInternal, Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	ev, err := o.store.GetEvent(ctx, ob.EventID)
	if err != nil {
		return failedOutcome(wrap(domain.CodeResolution, "load event", err))
	}
	res, err := o.resolver.Resolve(ctx, ev)
	if err != nil {
		return failedOutcome(wrap(domain.CodeResolution, "resolve recipients", err))
	}
	if len(res.Recipients) == 0 {
		return obligationOutcome{Kind: outcomeEmpty}
	}
	out.Recipients = len(res.Recipients)

	email, sms := o.routes(ctx, ob.Channel, res.Integration)
	now := o.now()
	if ob.Channel.WantsEmail() {
		o.sendEmail(ctx, &out, ob, ev, opts.Filter.Email(res.Recipients), email, opts, p.email, now)
	}
	if ob.Channel.WantsSMS() {
		o.sendSMS(ctx, &out, ob, ev, opts.Filter.SMS(res.Recipients), sms, opts, p.sms, now)
	}
	return out
}

// routes picks an adapter per channel. A bound integration is built once;
// if it lacks a channel, that channel goes through the default provider.
func (o *Orchestrator) routes(ctx context.Context, ch domain.Channel, integ *domain.Integration) (email, sms route) {
	var (
		ia     delivery.Adapter
		iaErr  error
		def    = o.adapters.Default()
		choose = func(c domain.Channel) route {
			if integ != nil {
				if iaErr != nil {
					return route{err: wrap(domain.CodeAdapterConstruction, "build "+string(integ.ServiceType)+" adapter", iaErr)}
				}
				if ia.Supports(c) {
					return route{adapter: ia, integ: integ}
				}
			}
			if def == nil || !def.Supports(c) {
				return route{err: wrap(domain.CodeAdapterConstruction, "default provider", fmt.Errorf("%w for %s", delivery.ErrNotConfigured, c))}
			}
			return route{adapter: def}
		}
	)
	if integ != nil {
		ia, iaErr = o.adapters.ForIntegration(ctx, *integ)
		if iaErr == nil && ia == nil {
			iaErr = errors.New("no adapter returned")
		}
		if iaErr != nil {
			o.log.Warn("integration adapter construction failed",
				logx.String("integration", integ.ID),
				logx.String("service", string(integ.ServiceType)),
				logx.String("code", string(domain.CodeAdapterConstruction)),
				logx.Err(iaErr),
			)
		}
	}
	if ch.WantsEmail() {
		email = choose(domain.ChannelEmail)
	}
	if ch.WantsSMS() {
		sms = choose(domain.ChannelSMS)
	}
	return email, sms
}

func (o *Orchestrator) vars(ev domain.Event, r domain.Recipient, now time.Time, opts Options) render.Vars {
	v := render.NewVars(ev, r, now, opts.Location)
	if o.links != nil {
		v.WatchURL = o.links.WatchURL(ev.ID, r)
		v.UnsubscribeURL = o.links.UnsubscribeURL(ev.ID, r)
	}
	return v
}

func (o *Orchestrator) sendEmail(ctx context.Context, out *obligationOutcome, ob domain.Obligation, ev domain.Event,
	targets []domain.Recipient, rt route, opts Options, pacer delivery.Pacer, now time.Time) {
	if len(targets) == 0 {
		return
	}
	if rt.err != nil {
		out.Failed += len(targets)
		out.note(CodeOf(rt.err), domain.ChannelEmail, rt.err.Error())
		o.metrics.Messages(string(domain.ChannelEmail), 0, len(targets))
		return
	}

	msgs := make([]delivery.EmailMessage, 0, len(targets))
	for _, r := range targets {
		mail, err := render.RenderEmail(ob.Stage, o.vars(ev, r, now, opts))
		if err != nil {
			out.Failed++
			out.note(domain.CodeInternal, domain.ChannelEmail, "render email: "+err.Error())
			continue
		}
		msgs = append(msgs, delivery.EmailMessage{
			RecipientID: r.ID,
			To:          r.Email,
			ToName:      strings.TrimSpace(r.FirstName + " " + r.LastName),
			Subject:     mail.Subject,
			HTML:        mail.HTML,
			Text:        mail.Text,
		})
	}

	bo := delivery.SendEmailBatches(ctx, rt.adapter, msgs, delivery.BatchOptions{
		Size:        opts.EmailBatchSize,
		Pacer:       pacer,
		CallTimeout: opts.CallTimeout,
		OnResult: func(res delivery.Result) {
			o.recordUsage(ctx, rt, domain.OpEmailSend, res)
		},
	})
	o.collect(out, domain.ChannelEmail, rt, bo)
}

func (o *Orchestrator) sendSMS(ctx context.Context, out *obligationOutcome, ob domain.Obligation, ev domain.Event,
	targets []domain.Recipient, rt route, opts Options, pacer delivery.Pacer, now time.Time) {
	if len(targets) == 0 {
		return
	}
	if rt.err != nil {
		out.Failed += len(targets)
		out.note(CodeOf(rt.err), domain.ChannelSMS, rt.err.Error())
		o.metrics.Messages(string(domain.ChannelSMS), 0, len(targets))
		return
	}

	msgs := make([]delivery.SMSMessage, 0, len(targets))
	for _, r := range targets {
		body, err := render.RenderSMS(ob.Stage, o.vars(ev, r, now, opts))
		if err != nil {
			out.Failed++
			out.note(domain.CodeInternal, domain.ChannelSMS, "render sms: "+err.Error())
			continue
		}
		msgs = append(msgs, delivery.SMSMessage{RecipientID: r.ID, To: r.Phone, Body: body})
	}

	// One serial dispatch is one batch for usage accounting.
	var total delivery.Result
	defer func() { o.recordUsage(ctx, rt, domain.OpSMSSend, total) }()
	bo := delivery.SendSMSSerial(ctx, rt.adapter, msgs, delivery.BatchOptions{
		Pacer:       pacer,
		CallTimeout: opts.CallTimeout,
		OnResult: func(res delivery.Result) {
			total.Success += res.Success
			total.Failure += res.Failure
			total.EstimatedCost += res.EstimatedCost
		},
	})
	o.collect(out, domain.ChannelSMS, rt, bo)
}

func (o *Orchestrator) collect(out *obligationOutcome, ch domain.Channel, rt route, bo delivery.BatchOutcome) {
	out.Sent += bo.Sent
	out.Failed += bo.Failed
	if len(bo.Errors) > 0 {
		msg := fmt.Sprintf("%s via %s: %d of %d calls failed", ch, rt.adapter.Name(), len(bo.Errors), len(bo.Errors)+len(bo.Results))
		out.note(domain.CodeProviderSend, ch, msg, bo.Errors...)
	} else if bo.Failed > 0 {
		out.note(domain.CodeProviderSend, ch, fmt.Sprintf("%s via %s: %d messages rejected", ch, rt.adapter.Name(), bo.Failed))
	}
	o.metrics.Messages(string(ch), bo.Sent, bo.Failed)
}
