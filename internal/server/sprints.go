package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"scrumboard/internal/access"
	"scrumboard/internal/models"
)

type sprintRequest struct {
	Name      *string    `json:"name"`
	Goal      *string    `json:"goal"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// handleListSprints returns all sprints of a space.
func (s *Server) handleListSprints(c *gin.Context) {
	sprints, err := s.store.ListSprints(c.Request.Context(), c.Param("space"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprints": sprints})
}

// handleCreateSprint creates a sprint in planning.
func (s *Server) handleCreateSprint(c *gin.Context) {
	var req sprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	sprint, err := s.store.CreateSprint(c.Request.Context(), c.Param("space"), models.NewSprint{
		Name:      getString(req.Name),
		Goal:      getString(req.Goal),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"sprint": sprint})
}

// handleGetSprint fetches one sprint.
func (s *Server) handleGetSprint(c *gin.Context) {
	sprint, err := s.store.GetSprint(c.Request.Context(), c.Param("space"), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sprint})
}

// handleUpdateSprint edits name, goal or dates.
func (s *Server) handleUpdateSprint(c *gin.Context) {
	var req sprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	sprint, err := s.store.UpdateSprint(c.Request.Context(), c.Param("space"), c.Param("id"), models.SprintPatch{
		Name:      req.Name,
		Goal:      req.Goal,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sprint})
}

// handleDeleteSprint removes a sprint that is not active.
func (s *Server) handleDeleteSprint(c *gin.Context) {
	if err := s.store.DeleteSprint(c.Request.Context(), c.Param("space"), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleStartSprint activates a sprint and reports the backlog migration.
func (s *Server) handleStartSprint(c *gin.Context) {
	result, err := s.store.StartSprint(c.Request.Context(), c.Param("space"), c.Param("id"), access.CallerID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// handleCompleteSprint closes the active sprint.
func (s *Server) handleCompleteSprint(c *gin.Context) {
	sprint, err := s.store.CompleteSprint(c.Request.Context(), c.Param("space"), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sprint})
}
