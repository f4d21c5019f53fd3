package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stacker/internal/engine"
	"stacker/internal/logger"
	"stacker/internal/manager"

	"github.com/gin-gonic/gin"
)

// Fleet is the slice of the bot manager the dashboard needs.
type Fleet interface {
	Summaries() []manager.BotSummary
	StateSnapshot(id string) (*engine.BotState, error)
	StartBot(id string) error
	StopBot(id string) error
}

// FillLister reads the trade journal.
type FillLister interface {
	ListFills(ctx context.Context, botID string, limit, offset int) ([]engine.FillRecord, error)
	CountFills(ctx context.Context, botID string) (int, error)
}

type ServerConfig struct {
	Addr  string
	Token string // empty disables auth (local/paper setups)

	Fleet Fleet
	Fills FillLister
}

// Server exposes the bot fleet over HTTP: summaries, per-bot state, trade
// history, and start/stop controls.
type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Fleet == nil {
		return nil, errors.New("http server requires a bot manager")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{fleet: cfg.Fleet, fills: cfg.Fills}
	api := router.Group("/api", tokenAuth(cfg.Token))
	api.GET("/bots", h.listBots)
	api.GET("/bots/:id/state", h.botState)
	api.POST("/bots/:id/start", h.startBot)
	api.POST("/bots/:id/stop", h.stopBot)
	api.GET("/fills", h.listFills)

	return &Server{addr: cfg.Addr, router: router}, nil
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func (s *Server) Handler() http.Handler {
	if s == nil {
		return nil
	}
	return s.router
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// tokenAuth accepts the token as a Bearer header or ?token= query parameter.
// An empty configured token disables the check.
func tokenAuth(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.Query("token"))
		if got == "" {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			got = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		if got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

type handlers struct {
	fleet Fleet
	fills FillLister
}

func (h *handlers) listBots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bots": h.fleet.Summaries()})
}

func (h *handlers) botState(c *gin.Context) {
	id := c.Param("id")
	st, err := h.fleet.StateSnapshot(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "state": st})
}

func (h *handlers) startBot(c *gin.Context) {
	id := c.Param("id")
	if err := h.fleet.StartBot(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] bot start ip=%s id=%s", c.ClientIP(), id)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) stopBot(c *gin.Context) {
	id := c.Param("id")
	if err := h.fleet.StopBot(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] bot stop ip=%s id=%s", c.ClientIP(), id)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) listFills(c *gin.Context) {
	if h.fills == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade history not enabled"})
		return
	}
	botID := strings.TrimSpace(c.Query("bot"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	ctx := c.Request.Context()
	fills, err := h.fills.ListFills(ctx, botID, limit, offset)
	if err != nil {
		logger.Errorf("[api] fills list failed ip=%s bot=%s err=%v", c.ClientIP(), botID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := h.fills.CountFills(ctx, botID)
	if err != nil {
		logger.Warnf("[api] fills count failed ip=%s bot=%s err=%v", c.ClientIP(), botID, err)
		total = -1
	}
	c.JSON(http.StatusOK, gin.H{
		"fills":       fills,
		"total_count": total,
	})
}
