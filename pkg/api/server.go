// Package api serves the operational endpoints and the contractually fixed
// read-only views over the store. All writes flow through the workers; this
// surface never mutates.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/engagic/engagic/pkg/conductor"
	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/store"
	"github.com/engagic/engagic/pkg/version"
)

// Server is the HTTP API.
type Server struct {
	db        *pgxpool.Pool
	cities    *store.CityRepo
	meetings  *store.MeetingRepo
	items     *store.ItemRepo
	search    *store.SearchRepo
	conductor *conductor.Conductor
	registry  *prometheus.Registry
	engine    *gin.Engine
}

// NewServer wires the routes.
func NewServer(db *pgxpool.Pool, cities *store.CityRepo, meetings *store.MeetingRepo, items *store.ItemRepo, search *store.SearchRepo, cond *conductor.Conductor, registry *prometheus.Registry) *Server {
	s := &Server{
		db:        db,
		cities:    cities,
		meetings:  meetings,
		items:     items,
		search:    search,
		conductor: cond,
		registry:  registry,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	apiGroup := engine.Group("/api")
	{
		apiGroup.GET("/stats", s.handleStats)
		apiGroup.GET("/meetings/:id", s.handleGetMeeting)
		apiGroup.GET("/cities/:banana/meetings", s.handleCityMeetings)
		apiGroup.GET("/search", s.handleSearch)
	}

	s.engine = engine
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth := database.Health(reqCtx, s.db)
	status := http.StatusOK
	overall := "healthy"
	if !dbHealth.Reachable {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"version":  version.Full(),
		"database": dbHealth,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	c.JSON(http.StatusOK, s.conductor.Health(reqCtx))
}

func (s *Server) handleGetMeeting(c *gin.Context) {
	meeting, err := s.meetings.GetMeeting(c.Request.Context(), s.db, c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if meeting.HasItems {
		items, err := s.items.GetAgendaItems(c.Request.Context(), s.db, meeting.ID)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		meeting.Items = items
	}
	c.JSON(http.StatusOK, meeting)
}

func (s *Server) handleCityMeetings(c *gin.Context) {
	banana := c.Param("banana")
	city, err := s.cities.GetCity(c.Request.Context(), s.db, store.GetCityQuery{Banana: banana})
	if err != nil {
		respondStoreError(c, err)
		return
	}

	meetings, err := s.meetings.GetMeetingsForCity(c.Request.Context(), s.db, banana, nil, 100)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	// cities with no successful sync still render, with their sync marker
	c.JSON(http.StatusOK, gin.H{
		"city":         city,
		"last_sync_at": city.LastSyncAt,
		"meetings":     meetingsOrEmpty(meetings),
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	text := c.Query("q")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing q parameter"})
		return
	}

	cityHits, err := s.search.SearchCities(c.Request.Context(), s.db, text, 25)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	meetingHits, err := s.search.SearchMeetings(c.Request.Context(), s.db, store.SearchQuery{
		Text:   text,
		Topic:  c.Query("topic"),
		Banana: c.Query("banana"),
		State:  c.Query("state"),
		Limit:  25,
	})
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cities":   cityHits,
		"meetings": meetingHits,
	})
}

func respondStoreError(c *gin.Context, err error) {
	var valErr *models.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func meetingsOrEmpty(m []models.Meeting) []models.Meeting {
	if m == nil {
		return []models.Meeting{}
	}
	return m
}

// requestLogger is a minimal structured access log; only failures are worth
// a line.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Writer.Status() >= 500 {
			slog.Error("request failed",
				"method", c.Request.Method, "path", c.Request.URL.Path,
				"status", c.Writer.Status(), "elapsed", time.Since(start))
		}
	}
}
