package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"assistchat/internal/models"
	"assistchat/internal/observability"
	"assistchat/internal/service/agent"
	"assistchat/internal/service/conversation"
	"assistchat/internal/service/run"
	"assistchat/internal/websession"
	"assistchat/internal/worker"
)

//go:embed static/index.html
var indexHTML []byte

const statusBuffer = 16

// Workers runs session tasks; *worker.Manager satisfies it.
type Workers interface {
	Session(ctx context.Context, sessionID string) (*models.Session, error)
	Send(ctx context.Context, sessionID, content string, onStatus run.StatusFunc) (*models.Session, *conversation.TurnResult, error)
	Reset(ctx context.Context, sessionID string) (*models.Session, error)
}

type StatusReporter interface {
	Status(ctx context.Context) conversation.Status
}

type Options struct {
	// MessagesPerMinute limits turn submissions per browser session; 0 disables it.
	MessagesPerMinute int
	// TurnTimeout bounds one message request end to end.
	TurnTimeout time.Duration
	Logger      *slog.Logger
}

// Handler wires HTTP routes to the session workers.
type Handler struct {
	workers     Workers
	status      StatusReporter
	sessions    *websession.Service
	limiter     *rateLimiter
	turnTimeout time.Duration
	logger      *slog.Logger
}

func NewHandler(workers Workers, status StatusReporter, sessions *websession.Service, opts Options) *Handler {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		workers:     workers,
		status:      status,
		sessions:    sessions,
		limiter:     newRateLimiter(opts.MessagesPerMinute),
		turnTimeout: opts.TurnTimeout,
		logger:      opts.Logger,
	}
}

// NewRouter builds the gin engine with logging, metrics and all routes.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestMiddleware(h.logger))
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.index)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	api := router.Group("/api")
	api.GET("/status", h.getStatus)

	session := api.Group("/session")
	session.Use(h.sessions.Middleware(), h.sessions.CSRFMiddleware())
	session.GET("", h.getSession)
	session.POST("/reset", h.resetSession)
	session.POST("/messages", h.sendMessage)
}

func (h *Handler) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Status(c.Request.Context()))
}

func (h *Handler) getSession(c *gin.Context) {
	sessionID, ok := websession.SessionIDFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}
	sess, err := h.workers.Session(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(sess))
}

func (h *Handler) resetSession(c *gin.Context) {
	sessionID, ok := websession.SessionIDFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}
	sess, err := h.workers.Reset(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(sess))
}

type messageRequest struct {
	Content string `json:"content"`
}

type turnOutcome struct {
	session *models.Session
	turn    *conversation.TurnResult
	err     error
}

// sendMessage runs one turn and streams its progress as server-sent events:
// ack, zero or more status, then done or error.
func (h *Handler) sendMessage(c *gin.Context) {
	sessionID, ok := websession.SessionIDFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": conversation.Notice(conversation.ErrEmptyMessage),
			"kind":  conversation.Kind(conversation.ErrEmptyMessage),
		})
		return
	}
	if !h.limiter.Allow(sessionID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many messages, please slow down", "kind": "rate_limited"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := sendEvent("ack", gin.H{"message": messageView(&models.Message{
		Role:      models.RoleUser,
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
	})}); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.turnTimeout)
	defer cancel()

	statuses := make(chan agent.RunStatus, statusBuffer)
	onStatus := func(s agent.RunStatus) {
		select {
		case statuses <- s:
		default:
		}
	}
	done := make(chan turnOutcome, 1)
	go func() {
		sess, turn, err := h.workers.Send(ctx, sessionID, req.Content, onStatus)
		done <- turnOutcome{session: sess, turn: turn, err: err}
	}()

	var last agent.RunStatus
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case s := <-statuses:
			if s == last {
				continue
			}
			last = s
			if err := sendEvent("status", gin.H{"status": s}); err != nil {
				return
			}
		case out := <-done:
			for drained := false; !drained; {
				select {
				case s := <-statuses:
					if s != last {
						last = s
						_ = sendEvent("status", gin.H{"status": s})
					}
				default:
					drained = true
				}
			}
			if out.err != nil {
				observability.LoggerFromContext(c.Request.Context()).Warn("turn failed", "kind", kindOf(out.err), "error", out.err)
				_ = sendEvent("error", gin.H{"message": noticeOf(out.err), "kind": kindOf(out.err)})
				return
			}
			payload := gin.H{
				"message":   messageView(out.turn.Assistant),
				"citations": citationsView(out.turn.Assistant.Citations),
				"run_id":    out.turn.RunID,
			}
			if out.session != nil {
				payload["title"] = out.session.Title
			}
			_ = sendEvent("done", payload)
			return
		}
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, worker.ErrQueueFull):
		status = http.StatusTooManyRequests
	case errors.Is(err, worker.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case kindOf(err) == "internal":
		status = http.StatusInternalServerError
	}
	observability.LoggerFromContext(c.Request.Context()).Warn("request failed", "status", status, "error", err)
	c.JSON(status, gin.H{"error": noticeOf(err), "kind": kindOf(err)})
}

func noticeOf(err error) string {
	switch {
	case errors.Is(err, worker.ErrQueueFull):
		return "A reply is still in progress. Please wait for it before sending another message."
	case errors.Is(err, worker.ErrStopped):
		return "The server is shutting down. Please try again shortly."
	}
	return conversation.Notice(err)
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, worker.ErrQueueFull):
		return "busy"
	case errors.Is(err, worker.ErrStopped):
		return "unavailable"
	}
	return conversation.Kind(err)
}

func sessionView(sess *models.Session) gin.H {
	msgs := make([]gin.H, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		msgs = append(msgs, messageView(m))
	}
	return gin.H{
		"id":         sess.ID,
		"title":      sess.Title,
		"messages":   msgs,
		"created_at": sess.CreatedAt,
		"updated_at": sess.UpdatedAt,
	}
}

func messageView(m *models.Message) gin.H {
	return gin.H{
		"role":       m.Role,
		"content":    m.Content,
		"citations":  citationsView(m.Citations),
		"created_at": m.CreatedAt,
	}
}

func citationsView(citations []models.Citation) []models.Citation {
	if citations == nil {
		return []models.Citation{}
	}
	return citations
}
