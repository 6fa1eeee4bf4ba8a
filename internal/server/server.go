// Package server exposes the dispatch trigger, schedule management and
// unsubscribe links over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"reminderd/internal/dispatch"
	"reminderd/internal/domain"
	"reminderd/internal/links"
	"reminderd/internal/metrics"
	logx "reminderd/pkg/logx"
)

const serviceName = "reminderd"

// Runner executes one dispatch run.
type Runner interface {
	Run(ctx context.Context) (dispatch.Summary, error)
}

// Planner stores an event's reminder schedule.
type Planner interface {
	Schedule(ctx context.Context, eventID string, channel domain.Channel, stages []domain.Stage) ([]domain.Obligation, error)
}

type Store interface {
	ListObligations(ctx context.Context, eventID string) ([]domain.Obligation, error)
	RevokeConsent(ctx context.Context, kind domain.RecipientKind, id string) error
}

// Verifier checks signed recipient links.
type Verifier interface {
	Verify(token string, want links.Purpose) (links.Claims, error)
}

type Deps struct {
	Runner  Runner
	Planner Planner
	Store   Store
	// Links may be nil; the unsubscribe route then answers 404.
	Links   Verifier
	Metrics *metrics.Metrics
	Log     logx.Logger
}

// Options are hot-reloadable.
type Options struct {
	// CronSecret is the bearer token for trigger and management routes.
	// Empty rejects every call.
	CronSecret string
	// RunTimeout bounds one HTTP-triggered run. Zero means no bound.
	RunTimeout time.Duration
}

type Server struct {
	router *gin.Engine
	deps   Deps
	log    logx.Logger
	opts   atomic.Pointer[Options]
}

func New(deps Deps, opts Options) *Server {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	router := gin.New()
	s := &Server{router: router, deps: deps, log: log.With(logx.Component("http"))}
	s.opts.Store(&opts)
	router.Use(s.recovery(), s.accessLog())
	s.setupRoutes()
	return s
}

func (s *Server) SetOptions(opts Options) { s.opts.Store(&opts) }

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})
	s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))

	cron := s.router.Group("/api/cron")
	{
		cron.GET("/send-notifications", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		cron.POST("/send-notifications", s.bearerAuth(), s.handleTrigger())
	}

	api := s.router.Group("/api/v1")
	{
		events := api.Group("/events/:id", s.bearerAuth())
		{
			events.PUT("/schedule", s.handlePutSchedule())
			events.GET("/schedule", s.handleGetSchedule())
		}
		api.GET("/unsubscribe", s.handleUnsubscribe())
	}
}

// bearerAuth compares the Authorization bearer token with CronSecret in
// constant time.
func (s *Server) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.opts.Load().CronSecret
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if secret == "" || !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) != 1 {
			s.log.Warn("unauthorized request", logx.String("path", c.FullPath()), logx.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("handler panic", logx.String("method", c.Request.Method), logx.String("path", c.Request.URL.Path), logx.Any("panic", r))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("dur", time.Since(start)),
		)
	}
}
