package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"scrumboard/internal/access"
	"scrumboard/internal/models"
	"scrumboard/internal/storage/sqlite"
)

// Server provides HTTP handlers for the backlog, board and sprint engine.
type Server struct {
	engine    *gin.Engine
	store     *sqlite.Store
	access    access.Checker
	logger    *slog.Logger
	staticDir string
}

// New constructs the HTTP server with routes and middleware configured.
func New(store *sqlite.Store, checker access.Checker, logger *slog.Logger, staticDir string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if checker == nil {
		checker = access.OpenChecker{}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		engine:    router,
		store:     store,
		access:    checker,
		logger:    logger,
		staticDir: staticDir,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	// Request logging covers the API only; static assets and health checks stay quiet.
	api := s.engine.Group("/api", gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz"))
	{
		api.GET("/healthz", s.handleHealth)

		space := api.Group("/spaces/:space", access.Middleware(s.access, s.logger))
		{
			space.GET("/backlog", s.handleGetBacklog)
			space.POST("/backlog", s.handleCreateBacklogItem)
			space.POST("/backlog/reorder", s.handleReorderBacklog)
			space.PUT("/backlog/:id", s.handleUpdateBacklogItem)
			space.DELETE("/backlog/:id", s.handleDeleteBacklogItem)

			space.GET("/board", s.handleGetBoard)
			space.POST("/columns", s.handleAddColumn)
			space.PUT("/columns/:id", s.handleUpdateColumn)
			space.POST("/columns/:id/move", s.handleMoveColumn)
			space.DELETE("/columns/:id", s.handleRemoveColumn)
			space.POST("/cards", s.handleCreateCard)
			space.PUT("/cards/:id", s.handleUpdateCard)
			space.POST("/cards/:id/move", s.handleMoveCard)
			space.DELETE("/cards/:id", s.handleDeleteCard)

			space.GET("/sprints", s.handleListSprints)
			space.POST("/sprints", s.handleCreateSprint)
			space.GET("/sprints/:id", s.handleGetSprint)
			space.PUT("/sprints/:id", s.handleUpdateSprint)
			space.DELETE("/sprints/:id", s.handleDeleteSprint)
			space.POST("/sprints/:id/start", s.handleStartSprint)
			space.POST("/sprints/:id/complete", s.handleCompleteSprint)
		}
	}

	s.mountStatic()
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// sprintQuery reads the optional ?sprint= query parameter.
func sprintQuery(c *gin.Context) *string {
	if v, ok := c.GetQuery("sprint"); ok && v != "" {
		return &v
	}
	return nil
}

// respondError maps domain errors to their status and hides everything else
// behind a generic 500.
func (s *Server) respondError(c *gin.Context, err error) {
	var domainErr *models.Error
	if errors.As(err, &domainErr) {
		status := http.StatusBadRequest
		switch domainErr.Kind {
		case models.KindNotFound:
			status = http.StatusNotFound
		case models.KindConflict:
			status = http.StatusConflict
		}
		s.logger.Info("request rejected", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		c.JSON(status, gin.H{"error": domainErr.Message, "code": domainErr.Code})
		return
	}

	s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// respondBindError reports a malformed request body.
func (s *Server) respondBindError(c *gin.Context, err error) {
	s.respondError(c, models.Validation("invalid request body: %v", err))
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
