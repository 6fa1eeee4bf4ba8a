package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"reminderd/internal/domain"
	"reminderd/internal/links"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

func (s *Server) handleTrigger() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if d := s.opts.Load().RunTimeout; d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		start := time.Now()
		sum, err := s.deps.Runner.Run(ctx)
		s.deps.Metrics.ObserveRun("http", time.Since(start), err)
		if err != nil {
			s.log.Error("dispatch run failed", logx.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		s.log.Info("dispatch run finished",
			logx.Int("processed", sum.Processed),
			logx.Int("sent", sum.Sent),
			logx.Int("failed", sum.Failed),
			logx.Int("skipped", sum.Skipped),
		)
		c.JSON(http.StatusOK, sum)
	}
}

type scheduleRequest struct {
	Channel domain.Channel `json:"channel" binding:"required"`
	Stages  []string       `json:"stages"`
}

type obligationResponse struct {
	ID              string               `json:"id"`
	EventID         string               `json:"event_id"`
	Channel         domain.Channel       `json:"channel"`
	Stage           domain.Stage         `json:"stage"`
	ScheduledAt     string               `json:"scheduled_at"`
	Status          domain.Status        `json:"status"`
	RecipientsCount int                  `json:"recipients_count"`
	SentCount       int                  `json:"sent_count"`
	FailedCount     int                  `json:"failed_count"`
	ErrorDetails    *domain.ErrorDetails `json:"error_details,omitempty"`
}

func toObligationResponses(obs []domain.Obligation) []obligationResponse {
	out := make([]obligationResponse, 0, len(obs))
	for _, ob := range obs {
		out = append(out, obligationResponse{
			ID:              ob.ID,
			EventID:         ob.EventID,
			Channel:         ob.Channel,
			Stage:           ob.Stage,
			ScheduledAt:     ob.ScheduledAt.UTC().Format(time.RFC3339),
			Status:          ob.Status,
			RecipientsCount: ob.RecipientsCount,
			SentCount:       ob.SentCount,
			FailedCount:     ob.FailedCount,
			ErrorDetails:    ob.ErrorDetails,
		})
	}
	return out
}

func (s *Server) handlePutSchedule() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req scheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		stages, err := domain.ParseStages(req.Stages)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		obs, err := s.deps.Planner.Schedule(c.Request.Context(), c.Param("id"), req.Channel, stages)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"obligations": toObligationResponses(obs)})
	}
}

func (s *Server) handleGetSchedule() gin.HandlerFunc {
	return func(c *gin.Context) {
		obs, err := s.deps.Store.ListObligations(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"obligations": toObligationResponses(obs)})
	}
}

func (s *Server) handleUnsubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Links == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "links disabled"})
			return
		}
		claims, err := s.deps.Links.Verify(c.Query("token"), links.PurposeUnsubscribe)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired link"})
			return
		}
		if err := s.deps.Store.RevokeConsent(c.Request.Context(), claims.Kind, claims.Subject); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				s.log.Error("revoke consent failed", logx.String("recipient", claims.Subject), logx.Err(err))
			}
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		s.log.Info("recipient unsubscribed",
			logx.String("recipient", claims.Subject),
			logx.String("kind", string(claims.Kind)),
			logx.Event(claims.EventID),
		)
		c.JSON(http.StatusOK, gin.H{"status": "unsubscribed"})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidChannel), errors.Is(err, domain.ErrUnknownStage):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
