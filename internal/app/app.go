// Package app wires configuration, storage, delivery and the HTTP surface
// into one long-running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"reminderd/internal/config"
	"reminderd/internal/delivery"
	"reminderd/internal/dispatch"
	"reminderd/internal/metrics"
	"reminderd/internal/observability/debug"
	"reminderd/internal/recipient"
	"reminderd/internal/reminder"
	"reminderd/internal/secrets"
	"reminderd/internal/server"
	"reminderd/internal/storage"
	"reminderd/internal/task/engine"
	"reminderd/internal/task/scheduler"
	"reminderd/internal/transport/telegram"
	logx "reminderd/pkg/logx"
)

const dispatchTaskName = "dispatch"

type App struct {
	cfgm *config.ConfigManager
	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	metrics *metrics.Metrics
	orch    *dispatch.Orchestrator
	srv     *server.Server
	http    *http.Server
	timeout httpTimeouts

	engine *engine.Service
	sched  *scheduler.Service
	debug  *debug.Service
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	var sender logx.Sender
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token}, logx.NewConsole("INFO"))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = tg
	}
	logSvc, log := logx.New(mapLogConfig(cfg), sender)
	cfgm.SetLogger(log.With(logx.Component("config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		if err := config.Validate(c); err != nil {
			return err
		}
		_, _, err := scheduleSpec(c)
		return err
	})

	a := &App{cfgm: cfgm, log: log.With(logx.Component("app")), logs: logSvc, metrics: metrics.New()}
	if err := a.build(ctx, cfg); err != nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	st, err := storage.Open(ctx, sc, a.log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.store = st

	vault, err := secrets.NewVault(cfg.Secrets.Key)
	if err != nil {
		return fmt.Errorf("secrets.key: %w", err)
	}
	dopts, err := mapDispatchOptions(cfg)
	if err != nil {
		return err
	}
	client := delivery.NewHTTPClient(dopts.CallTimeout)

	// A platform without a default provider still serves integration-backed events.
	def, err := delivery.NewDefault(mapProviderConfig(cfg), client)
	if err != nil {
		a.log.Warn("default provider not configured; events without an integration will fail", logx.Err(err))
		def = nil
	}

	signer, err := newSigner(cfg)
	if err != nil {
		return fmt.Errorf("links: %w", err)
	}
	var (
		dlinks   dispatch.Links
		verifier server.Verifier
	)
	if signer != nil {
		dlinks, verifier = signer, signer
	}

	a.orch = dispatch.New(dispatch.Deps{
		Store:    st,
		Resolver: recipient.NewResolver(st, a.log),
		Adapters: dispatch.NewFactory(def, vault, client),
		Links:    dlinks,
		Metrics:  a.metrics,
		Log:      a.log,
	}, dopts)

	sopts, err := mapServerOptions(cfg)
	if err != nil {
		return err
	}
	if sopts.CronSecret == "" {
		a.log.Warn("server.cron_secret is empty; the trigger endpoint rejects every call")
	}
	a.srv = server.New(server.Deps{
		Runner:  a.orch,
		Planner: reminder.NewPlanner(st, a.log, uuid.NewString),
		Store:   st,
		Links:   verifier,
		Metrics: a.metrics,
		Log:     a.log,
	}, sopts)
	if a.timeout, err = mapHTTPTimeouts(cfg); err != nil {
		return err
	}
	addr := strings.TrimSpace(cfg.Server.Addr)
	if addr == "" {
		addr = ":8080"
	}
	a.http = &http.Server{
		Addr:              addr,
		Handler:           a.srv.Handler(),
		ReadHeaderTimeout: a.timeout.read,
		ReadTimeout:       a.timeout.read,
		WriteTimeout:      a.timeout.write,
	}

	ecfg, err := mapEngineConfig(cfg)
	if err != nil {
		return err
	}
	a.engine = engine.New(ecfg, a.log)
	a.sched = scheduler.New(mapSchedulerConfig(cfg), a.engine, a.log)
	spec, timeout, err := scheduleSpec(cfg)
	if err != nil {
		return fmt.Errorf("scheduler.spec: %w", err)
	}
	if err := a.sched.AddSchedule(dispatchTaskName, spec, timeout, a.runScheduled); err != nil {
		return err
	}
	a.debug = debug.New(a.state, a.log)
	return nil
}

type runtimeState struct {
	Engine    engine.Snapshot    `json:"engine"`
	Scheduler scheduler.Snapshot `json:"scheduler"`
}

func (a *App) state() any {
	return runtimeState{Engine: a.engine.Snapshot(), Scheduler: a.sched.Snapshot()}
}

// runScheduled is the in-process trigger. Selection failures are returned so
// the engine records them; per-obligation failures only show in the summary.
func (a *App) runScheduled(ctx context.Context) error {
	start := time.Now()
	sum, err := a.orch.Run(ctx)
	a.metrics.ObserveRun("scheduler", time.Since(start), err)
	if err != nil {
		// A run cut short by its deadline is not retried; the next tick picks up what is left.
		if ctx.Err() != nil {
			return engine.NoRetry(err)
		}
		return err
	}
	if sum.Processed > 0 || sum.Skipped > 0 {
		a.log.Info("scheduled run finished",
			logx.Int("processed", sum.Processed),
			logx.Int("sent", sum.Sent),
			logx.Int("failed", sum.Failed),
			logx.Int("skipped", sum.Skipped),
		)
	}
	return nil
}

// Run serves until ctx is canceled or a component fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.http.Addr)
	if err != nil {
		a.close()
		return fmt.Errorf("listen %s: %w", a.http.Addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	// Workers outlive gctx so Stop can let an in-flight run finish.
	a.engine.Start(context.WithoutCancel(gctx))
	a.sched.Start(gctx)

	g.Go(func() error {
		a.log.Info("http listening", logx.String("addr", ln.Addr().String()))
		if err := a.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if err := a.debug.Reconfigure(gctx, mapDebugConfig(a.cfgm.Get())); err != nil {
		a.log.Warn("debug listener not started", logx.Err(err))
	}
	g.Go(func() error { return a.cfgm.Watch(gctx) })
	g.Go(func() error { a.reloadLoop(gctx); return nil })
	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("reminderd started")

	err = g.Wait()
	a.close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) shutdown() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	// Stop triggers first so no new run starts, then let in-flight runs finish.
	step := func(name string, max time.Duration, fn func(context.Context)) {
		ctx, cancel := context.WithTimeout(context.Background(), max)
		defer cancel()
		start := time.Now()
		fn(ctx)
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}
	step("http", a.timeout.shutdown, func(c context.Context) {
		if err := a.http.Shutdown(c); err != nil {
			a.log.Warn("http shutdown", logx.Err(err))
		}
	})
	step("debug", time.Second, a.debug.Stop)
	step("scheduler", 2*time.Second, a.sched.Stop)
	step("taskengine", a.timeout.shutdown, a.engine.Stop)
}

func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	a.logs.Close()
}

// reloadLoop applies hot-reloadable sections. Others are logged as needing a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			a.apply(ctx, last, next)
			last = next
		}
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.logs.Apply(mapLogConfig(next))

	if opts, err := mapDispatchOptions(next); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.orch.SetOptions(opts)
	}
	if opts, err := mapServerOptions(next); err != nil {
		a.log.Warn("invalid server config; keeping previous", logx.Err(err))
	} else {
		a.srv.SetOptions(opts)
	}
	if ecfg, err := mapEngineConfig(next); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ecfg)
	}

	prevEnabled := a.sched.Enabled()
	a.sched.Apply(mapSchedulerConfig(next))
	if slices.Contains(sections, "scheduler") {
		if spec, timeout, err := scheduleSpec(next); err != nil {
			a.log.Warn("invalid scheduler.spec; keeping previous", logx.Err(err))
		} else if err := a.sched.AddSchedule(dispatchTaskName, spec, timeout, a.runScheduled); err != nil {
			a.log.Warn("scheduler update failed", logx.Err(err))
		}
	}
	switch {
	case prevEnabled && !next.Scheduler.Enabled:
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
		a.log.Info("scheduler disabled via config")
	case !prevEnabled && next.Scheduler.Enabled:
		a.sched.Start(ctx)
		a.log.Info("scheduler enabled via config")
	}

	if err := a.debug.Reconfigure(ctx, mapDebugConfig(next)); err != nil {
		a.log.Warn("debug listener update failed", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
