package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Martian-dev/inbox-triage/internal/eventstore/sqlite"
	"github.com/Martian-dev/inbox-triage/internal/metrics"
	"github.com/Martian-dev/inbox-triage/internal/sync"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PushHandler processes a raw Pub/Sub push body
type PushHandler interface {
	Handle(ctx context.Context, body []byte) sync.Result
}

// TokenVerifier validates the OIDC token on push requests
type TokenVerifier interface {
	Verify(r *http.Request) error
}

// EventLister reads recent triage outcomes for the inspection endpoint
type EventLister interface {
	RecentTriages(ctx context.Context, tier string, limit int) ([]sqlite.TriageRecord, error)
}

// Server wires the push webhook and inspection endpoints
type Server struct {
	handler  PushHandler
	verifier TokenVerifier
	events   EventLister
	log      *slog.Logger
}

// New creates a server. A nil verifier disables push authentication,
// a nil events store disables the /triage/events endpoint.
func New(handler PushHandler, verifier TokenVerifier, events EventLister, log *slog.Logger) *Server {
	return &Server{
		handler:  handler,
		verifier: verifier,
		events:   events,
		log:      log,
	}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	push := r.Group("/")
	if s.verifier != nil {
		push.Use(s.pushAuthMiddleware())
	}
	push.POST("/gmail/push", s.handlePush)

	if s.events != nil {
		r.GET("/triage/events", s.handleEvents)
	}

	return r
}

func (s *Server) handlePush(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	result := s.handler.Handle(c.Request.Context(), body)
	metrics.Notifications.WithLabelValues(string(result.Outcome)).Inc()

	switch result.Outcome {
	case sync.OutcomeSkippedVerification:
		// Verification pings and malformed envelopes get acked without a body
		c.Status(http.StatusNoContent)

	case sync.OutcomeCheckpointReset:
		metrics.CheckpointResets.Inc()
		c.Status(http.StatusNoContent)

	case sync.OutcomeSkippedStale:
		c.JSON(http.StatusOK, gin.H{"status": "skipped", "reason": "old_notification"})

	case sync.OutcomeAuthError:
		// Ack so Pub/Sub stops redelivering; retries cannot fix bad credentials
		c.JSON(http.StatusOK, gin.H{"status": "auth_error", "message": result.Err.Error()})

	case sync.OutcomeProcessed:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})

	default:
		// Unexpected failure: 500 so Pub/Sub redelivers the notification
		s.log.Error("push handling failed", "error", result.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Err.Error()})
	}
}

func (s *Server) handleEvents(c *gin.Context) {
	tier := c.Query("tier")

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	if limit > 500 {
		limit = 500
	}

	records, err := s.events.RecentTriages(c.Request.Context(), tier, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": records, "count": len(records)})
}

func (s *Server) pushAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.verifier.Verify(c.Request); err != nil {
			s.log.Warn("rejected push request", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid push token"})
			c.Abort()
			return
		}
		c.Next()
	}
}
