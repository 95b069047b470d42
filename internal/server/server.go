// Package server exposes the HTTP publish trigger for the pipeline.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dealalert/internal/model"
	"dealalert/internal/pipeline"
	"dealalert/internal/store"
)

// publishRequest is the full record of an item that was just created by
// the publishing flow.
type publishRequest struct {
	ID          int64  `json:"id"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Server handles publish triggers and health checks over HTTP.
type Server struct {
	pipe  *pipeline.Pipeline
	store store.Storage
	log   *slog.Logger
	http  *http.Server
}

// New creates a Server listening on addr.
func New(addr string, pipe *pipeline.Pipeline, st store.Storage, log *slog.Logger) *Server {
	s := &Server{pipe: pipe, store: st, log: log}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/items", s.handlePublish)
	router.GET("/healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the underlying HTTP handler (useful for testing).
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// handlePublish runs the notification pipeline for a freshly published
// item and reports the per-mode counts back to the publishing caller,
// including how many immediate dispatches failed.
func (s *Server) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := model.Item{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		CreatedAt:   time.Now().UTC(),
	}
	if item.ID == 0 {
		// The publishing flow normally persists the item first; accept
		// and store bare records so the digest path can resolve them.
		if err := s.store.CreateItem(c.Request.Context(), &item); err != nil {
			s.log.Error("create item", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
	}

	res, err := s.pipe.Publish(c.Request.Context(), item)
	if err != nil {
		s.log.Error("publish pipeline", "item_id", item.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pipeline failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item_id":   item.ID,
		"matched":   res.Matched,
		"delivered": res.Delivered,
		"queued":    res.Queued,
		"dropped":   res.Dropped,
		"failed":    res.Failed,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
