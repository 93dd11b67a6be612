// Package server exposes the assistant over HTTP: chat messages, a
// stateless parse endpoint and the per-user outbox for proactive messages.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gutcheck/internal/assistant"
	"gutcheck/internal/clock"
	"gutcheck/internal/dialog"
	"gutcheck/internal/logging"
	"gutcheck/internal/perception"
	"gutcheck/internal/types"

	"github.com/gin-gonic/gin"
)

// MaxTextLength bounds an incoming message.
const MaxTextLength = 2000

// Understander is the stateless parse path.
type Understander interface {
	Understand(ctx context.Context, text string, opts perception.Options) types.ParseResult
}

// Clarifier decides whether a parse needs a question.
type Clarifier interface {
	NeedsClarification(text string, p *types.ParseResult) *dialog.Clarification
}

// Handler serves the HTTP API.
type Handler struct {
	assistant  *assistant.Assistant
	understand Understander
	clarifier  Clarifier
	defaultTZ  *time.Location

	locks sync.Map // user id -> *sync.Mutex
}

// NewHandler creates a handler.
func NewHandler(a *assistant.Assistant, u Understander, c Clarifier, defaultTZ *time.Location) *Handler {
	if defaultTZ == nil {
		defaultTZ = time.UTC
	}
	return &Handler{assistant: a, understand: u, clarifier: c, defaultTZ: defaultTZ}
}

// RegisterRoutes registers the API on router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.handleHealth)

	v1 := router.Group("/v1")
	{
		v1.POST("/messages", h.handleMessage)
		v1.POST("/understand", h.handleUnderstand)
		v1.GET("/users/:userId/outbox", h.handleOutbox)
	}
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	MessageID string `json:"message_id"`
	Channel   string `json:"channel"`
	Text      string `json:"text"`
	Timezone  string `json:"timezone"`
}

// UnderstandRequest is the body of POST /v1/understand.
type UnderstandRequest struct {
	UserID   string `json:"user_id"`
	Text     string `json:"text" binding:"required"`
	Timezone string `json:"timezone"`
	Intent   string `json:"intent"` // optional forced intent
}

// UnderstandResponse is the reply of POST /v1/understand.
type UnderstandResponse struct {
	Parse         types.ParseResult     `json:"parse"`
	Clarification *dialog.Clarification `json:"clarification,omitempty"`
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) handleMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request: " + err.Error()})
		return
	}
	if len(req.Text) > MaxTextLength {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "error", "error": fmt.Sprintf("text longer than %d bytes", MaxTextLength)})
		return
	}
	channel := req.Channel
	if channel == "" {
		channel = "http"
	}

	unlock := h.lockUser(req.UserID)
	defer unlock()

	resp := h.assistant.Handle(c.Request.Context(), dialog.Message{
		ID:       req.MessageID,
		UserID:   req.UserID,
		Channel:  channel,
		Text:     req.Text,
		Location: h.location(req.Timezone),
	})
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleUnderstand(c *gin.Context) {
	var req UnderstandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request: " + err.Error()})
		return
	}
	if len(req.Text) > MaxTextLength {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"status": "error", "error": fmt.Sprintf("text longer than %d bytes", MaxTextLength)})
		return
	}
	opts := perception.Options{UserID: req.UserID, Timezone: h.location(req.Timezone)}
	if req.Intent != "" {
		in, ok := types.ParseIntent(req.Intent)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "unknown intent: " + req.Intent})
			return
		}
		opts.ForcedIntent = in
	}

	p := h.understand.Understand(c.Request.Context(), req.Text, opts)
	out := UnderstandResponse{Parse: p}
	if h.clarifier != nil {
		out.Clarification = h.clarifier.NeedsClarification(req.Text, &p)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) handleOutbox(c *gin.Context) {
	userID := c.Param("userId")
	replies := h.assistant.Outbox().Drain(userID)
	if replies == nil {
		replies = []assistant.Reply{}
	}
	c.JSON(http.StatusOK, gin.H{"replies": replies})
}

// lockUser serializes turns of one user.
func (h *Handler) lockUser(userID string) func() {
	v, _ := h.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (h *Handler) location(tz string) *time.Location {
	if tz == "" {
		return h.defaultTZ
	}
	return clock.LoadLocation(tz)
}

// =============================================================================
// ROUTER AND SERVER
// =============================================================================

// NewRouter builds the gin engine with recovery and request logging.
func NewRouter(mode string, h *Handler) *gin.Engine {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		logging.ServerError("panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "internal error"})
	}))
	router.Use(requestLogger())
	h.RegisterRoutes(router)
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Server("%s %s -> %d (%v)", c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// Server is the HTTP listener.
type Server struct {
	http *http.Server
}

// New creates a server for router on addr.
func New(addr string, router http.Handler) *Server {
	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Server("listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-errCh
	logging.Server("server stopped")
	return nil
}
