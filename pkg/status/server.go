// Package status serves the health and run history of serve mode over HTTP.
package status

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/siqueiraa/HubSync/pkg/journal"
)

const (
	defaultHistoryLimit = 20
	shutdownTimeout     = 5 * time.Second
)

// History is the journal view the server reads.
type History interface {
	History(entityType string, limit int) ([]journal.Entry, error)
	StatsByEntityType() (map[string]int, error)
}

// Server holds the state for the status API.
type Server struct {
	history History
	router  *gin.Engine
	lastRun atomic.Pointer[time.Time]
	running atomic.Bool
}

// NewServer creates a Server. history may be nil when no journal is kept.
func NewServer(history History) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	s := &Server{history: history, router: r}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RunStarted marks a batch as in progress.
func (s *Server) RunStarted() {
	s.running.Store(true)
}

// RunFinished records the end of a batch.
func (s *Server) RunFinished(at time.Time) {
	s.running.Store(false)
	s.lastRun.Store(&at)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Status] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthCheck)
	s.router.GET("/runs", s.handleStats)
	s.router.GET("/runs/:entityType", s.handleRuns)
}

func (s *Server) healthCheck(c *gin.Context) {
	body := gin.H{"status": "ok", "running": s.running.Load()}
	if last := s.lastRun.Load(); last != nil {
		body["lastRun"] = last.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleStats(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	stats, err := s.history.StatsByEntityType()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}

	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := s.history.History(c.Param("entityType"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}
