// Package server exposes discussions over HTTP. Posting a message streams the agents'
// replies back as server-sent events.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"discussion-agent/internal/contextmgr"
	"discussion-agent/internal/conversation"
	"discussion-agent/internal/discussion"
	"discussion-agent/internal/history"
	"discussion-agent/internal/logging"
)

// Discussions is the slice of the orchestrator the HTTP API depends on.
type Discussions interface {
	conversation.Manager
	History(ctx context.Context, key history.ConversationKey) (history.MessageBatch, error)
	Clear(ctx context.Context, key history.ConversationKey) error
	PreviewPrompt(ctx context.Context, key history.ConversationKey, agentID string) (contextmgr.TruncationResult, error)
	Agents() []discussion.AgentProfile
}

type Options struct {
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   logging.Logger
}

// Handler serves the discussion API.
type Handler struct {
	discussions Discussions
	logger      logging.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(discussions Discussions, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	h := &Handler{discussions: discussions, logger: opts.Logger}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(opts.Logger))
	engine.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	engine.GET("/healthz", h.health)
	if opts.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := engine.Group("/v1")
	v1.GET("/agents", h.listAgents)

	d := v1.Group("/tenants/:tenant/discussions/:id")
	{
		d.GET("/messages", h.listMessages)
		d.POST("/messages", h.postMessage)
		d.DELETE("", h.clear)
		d.GET("/prompt/:agent", h.previewPrompt)
	}
	return engine
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Last-Event-ID"}
	return cfg
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.With(
			logging.F("method", c.Request.Method),
			logging.F("path", c.FullPath()),
			logging.F("status", c.Writer.Status()),
			logging.Since(start),
		).Debug("http request")
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.discussions.Agents()})
}

func (h *Handler) listMessages(c *gin.Context) {
	msgs, err := h.discussions.History(c.Request.Context(), discussionKey(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if msgs == nil {
		msgs = history.MessageBatch{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) clear(c *gin.Context) {
	if err := h.discussions.Clear(c.Request.Context(), discussionKey(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) previewPrompt(c *gin.Context) {
	agentID := c.Param("agent")
	result, err := h.discussions.PreviewPrompt(c.Request.Context(), discussionKey(c), agentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newPromptView(agentID, result))
}

func discussionKey(c *gin.Context) history.ConversationKey {
	return history.ConversationKey{TenantID: c.Param("tenant"), DiscussionID: c.Param("id")}
}

// fail writes err as a JSON error body unless a stream already started.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.With(logging.F("err", err), logging.F("path", c.FullPath())).Error("request failed")
	}
	c.AbortWithStatusJSON(status, errorView{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, conversation.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrUnknownAgent):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}
