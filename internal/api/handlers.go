// Package api provides the webhook and session API handlers for buzzer-bridge
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shiv6146/buzzer-bridge/internal/call"
	"github.com/shiv6146/buzzer-bridge/internal/models"
	"github.com/shiv6146/buzzer-bridge/internal/routing"
	"github.com/shiv6146/buzzer-bridge/internal/twiml"
)

// Notifier queues a lighting notification without blocking
type Notifier interface {
	Dispatch(reason string) bool
}

// History lists persisted sessions
type History interface {
	ListSessions(ctx context.Context, limit int) ([]*models.SessionLog, error)
}

// Mirror reports sessions mirrored to the shared cache
type Mirror interface {
	ActiveSessionCount(ctx context.Context) (int64, error)
}

// Handler holds the API dependencies
type Handler struct {
	manager    *call.Manager
	classifier *routing.Classifier
	notifier   Notifier
	history    History
	mirror     Mirror
	logger     *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{
		manager:    deps.Manager,
		classifier: deps.Classifier,
		notifier:   deps.Notifier,
		history:    deps.History,
		mirror:     deps.Mirror,
		logger:     logger,
	}
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ActiveSessionsResponse lists the in-memory session table
type ActiveSessionsResponse struct {
	Count    int             `json:"count"`
	Mirrored *int64          `json:"mirrored,omitempty"`
	Sessions []call.Snapshot `json:"sessions"`
}

// Webhook answers a call-status notification with a TwiML document
func (h *Handler) Webhook(c *gin.Context) {
	var ev models.CallEvent
	if err := c.ShouldBind(&ev); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Details: err.Error()})
		return
	}

	scenario, err := h.classifier.Classify(&ev)
	if err != nil {
		h.logger.Warn("malformed call event",
			zap.String("from", ev.From),
			zap.String("to", ev.To),
			zap.String("call_sid", ev.CallSID),
			zap.Error(err))
		if errors.Is(err, routing.ErrMalformedEvent) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Malformed call event", Details: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to classify call event"})
		return
	}

	if ev.CallSID == "" && scenario.Kind != models.ScenarioProbe {
		h.logger.Warn("call event without CallSid",
			zap.String("scenario", string(scenario.Kind)),
			zap.String("from", ev.From),
			zap.String("to", ev.To))
	}

	h.respond(c, h.manager.Decide(c.Request.Context(), &ev, scenario))
}

// Hold answers the wait URL polled while a leg sits in the conference
func (h *Handler) Hold(c *gin.Context) {
	h.respond(c, h.manager.Hold())
}

func (h *Handler) respond(c *gin.Context, d models.Decision) {
	doc, err := twiml.Render(d)
	if err != nil {
		h.logger.Error("failed to render decision", zap.String("kind", string(d.Kind)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to render response"})
		return
	}

	c.Data(http.StatusOK, twiml.ContentType, []byte(doc))

	if d.Notify != "" && h.notifier != nil {
		if !h.notifier.Dispatch(d.Notify) {
			h.logger.Debug("notification dropped", zap.String("reason", d.Notify))
		}
	}
}

// ActiveSessions returns the sessions currently held in memory
func (h *Handler) ActiveSessions(c *gin.Context) {
	resp := ActiveSessionsResponse{Sessions: h.manager.Sessions()}
	resp.Count = len(resp.Sessions)

	if h.mirror != nil {
		n, err := h.mirror.ActiveSessionCount(c.Request.Context())
		if err != nil {
			h.logger.Warn("failed to count mirrored sessions", zap.Error(err))
		} else {
			resp.Mirrored = &n
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ListSessions returns persisted session history
func (h *Handler) ListSessions(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Session history is not configured"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Details: "limit must be between 1 and 500"})
		return
	}

	sessions, err := h.history.ListSessions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch sessions", Details: err.Error()})
		return
	}

	if sessions == nil {
		sessions = []*models.SessionLog{}
	}

	c.JSON(http.StatusOK, sessions)
}

// HealthCheck reports liveness
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"service":         "buzzer-bridge",
		"active_sessions": h.manager.ActiveCount(),
	})
}
