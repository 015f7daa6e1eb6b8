package server

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guarzo/mltrends/internal/auth"
	"github.com/guarzo/mltrends/internal/enrich"
	"github.com/guarzo/mltrends/internal/metrics"
	"github.com/guarzo/mltrends/internal/search"
	"github.com/guarzo/mltrends/internal/trends"
)

// Deps are the components the API serves.
type Deps struct {
	Trends   trends.Source
	Searcher search.Searcher
	// Enriched may be nil, in which case sessions never use a cache.
	Enriched enrich.EnrichmentCache
	// Tokens is nil when no OAuth client is configured.
	Tokens *auth.CachedTokenSource
	// Batch is the template for new sessions; Site and Limit come from the request.
	Batch          enrich.Options
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server holds the HTTP handlers and the live sessions they manage.
type Server struct {
	deps      Deps
	logger    *slog.Logger
	sessions  *sessionRegistry
	enrichers *enricherRegistry
	engine    *gin.Engine
}

// New builds the router.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:      deps,
		logger:    logger.With("component", "http"),
		sessions:  newSessionRegistry(maxSessions, sessionIdleTTL),
		enrichers: newEnricherRegistry(maxEnrichers),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger(), s.corsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/sites", s.listSites)
		api.GET("/token", s.tokenStatus)
		api.GET("/trends/:site", s.getTrends)
		api.GET("/enriched/:site", s.getEnriched)
		api.POST("/enriched/:site", s.putEnriched)
		api.GET("/search/:site", s.searchSite)
		api.POST("/enrich/:site", s.enrichOne)

		api.POST("/sessions", s.createSession)
		api.GET("/sessions/:id", s.getSession)
		api.POST("/sessions/:id/more", s.loadMore)
		api.POST("/sessions/:id/refresh", s.refreshSession)
		api.DELETE("/sessions/:id", s.deleteSession)
		api.GET("/sessions/:id/export", s.exportSession)
	}

	s.engine = router
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Close abandons every live session.
func (s *Server) Close() {
	s.sessions.closeAll()
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	origins := s.deps.AllowedOrigins
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := "*"
		if len(origins) > 0 {
			allowed = ""
			if slices.Contains(origins, "*") || slices.Contains(origins, origin) {
				allowed = origin
			}
		}
		if allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
		}
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
