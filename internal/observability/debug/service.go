// Package debug runs an optional operator listener with pprof and task
// engine state. It is separate from the public API so it can stay bound to
// loopback.
package debug

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	logx "reminderd/pkg/logx"
)

const defaultAddr = "127.0.0.1:6060"

// Config controls the listener.
//
// A non-loopback Addr requires Token.
type Config struct {
	Enabled bool
	Addr    string
	Token   string
}

// StateFunc returns a JSON-encodable view of runtime state.
type StateFunc func() any

type Service struct {
	mu    sync.Mutex
	log   logx.Logger
	cfg   Config
	state StateFunc

	srv  *http.Server
	addr string
	done chan struct{}
}

func New(state StateFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{state: state, log: log.With(logx.Component("debug"))}
}

// Addr is the bound address, or "" when not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg, starting, stopping or restarting the listener.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	prev, running := s.cfg, s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
		return nil
	case running && prev == cfg:
		return nil
	case running:
		s.Stop(ctx)
	}
	return s.start(cfg)
}

func (s *Service) start(cfg Config) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		return errors.New("debug listener refused: non-loopback addr requires token")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router(cfg.Token),
		ReadHeaderTimeout: 5 * time.Second,
		// /debug/pprof/profile streams for up to 30s by default.
		WriteTimeout: 60 * time.Second,
	}
	done := make(chan struct{})
	s.mu.Lock()
	s.srv, s.addr, s.done = srv, ln.Addr().String(), done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("debug listener exited", logx.Err(err))
		}
	}()
	s.log.Info("debug listener started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.addr, s.done = nil, "", nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("debug listener stopped")
}

func (s *Service) router(token string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	g := r.Group("/debug", withAuth(token))
	{
		g.GET("/state", func(c *gin.Context) {
			if s.state == nil {
				c.JSON(http.StatusOK, gin.H{})
				return
			}
			c.JSON(http.StatusOK, s.state())
		})
		g.GET("/pprof/", gin.WrapF(hpprof.Index))
		g.GET("/pprof/cmdline", gin.WrapF(hpprof.Cmdline))
		g.GET("/pprof/profile", gin.WrapF(hpprof.Profile))
		g.GET("/pprof/symbol", gin.WrapF(hpprof.Symbol))
		g.POST("/pprof/symbol", gin.WrapF(hpprof.Symbol))
		g.GET("/pprof/trace", gin.WrapF(hpprof.Trace))
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			g.GET("/pprof/"+name, gin.WrapH(hpprof.Handler(name)))
		}
	}
	return r
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=.
// An empty token disables the check.
func withAuth(token string) gin.HandlerFunc {
	tok := []byte(strings.TrimSpace(token))
	return func(c *gin.Context) {
		if len(tok) == 0 {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			got, _ = strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), tok) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
