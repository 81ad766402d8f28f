package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scrumboard/internal/access"
	"scrumboard/internal/models"
)

type columnRequest struct {
	Name     *string `json:"name"`
	WIPLimit *int64  `json:"wip_limit"`
	SprintID *string `json:"sprint_id"`
}

type cardRequest struct {
	itemRequest
	ColumnID string  `json:"column_id"`
	SprintID *string `json:"sprint_id"`
}

type moveRequest struct {
	ColumnID string `json:"column_id"`
	Position *int64 `json:"position"`
}

// handleGetBoard returns the Kanban board, or a sprint board with ?sprint=.
func (s *Server) handleGetBoard(c *gin.Context) {
	board, err := s.store.GetBoard(c.Request.Context(), c.Param("space"), sprintQuery(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"board": board})
}

// handleAddColumn appends a column to a board.
func (s *Server) handleAddColumn(c *gin.Context) {
	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	column, err := s.store.AddColumn(c.Request.Context(), c.Param("space"), getString(req.Name), req.WIPLimit, nonEmpty(req.SprintID))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"column": column})
}

// handleUpdateColumn renames a column or changes its WIP limit.
func (s *Server) handleUpdateColumn(c *gin.Context) {
	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	patch := models.ColumnPatch{Name: req.Name, WIPLimit: req.WIPLimit}
	column, err := s.store.UpdateColumn(c.Request.Context(), c.Param("space"), c.Param("id"), patch, sprintQuery(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"column": column})
}

// handleMoveColumn changes the order of columns on a board.
func (s *Server) handleMoveColumn(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	if req.Position == nil {
		s.respondError(c, models.Validation("position is required"))
		return
	}

	column, err := s.store.MoveColumn(c.Request.Context(), c.Param("space"), c.Param("id"), *req.Position, sprintQuery(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"column": column})
}

// handleRemoveColumn deletes a column together with its cards.
func (s *Server) handleRemoveColumn(c *gin.Context) {
	if err := s.store.RemoveColumn(c.Request.Context(), c.Param("space"), c.Param("id"), sprintQuery(c)); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleCreateCard appends a card to a column.
func (s *Server) handleCreateCard(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	card, err := s.store.CreateCard(c.Request.Context(), c.Param("space"), req.ColumnID, req.newItem(), access.CallerID(c), nonEmpty(req.SprintID))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"card": card})
}

// handleUpdateCard applies a partial update to a card.
func (s *Server) handleUpdateCard(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	card, err := s.store.UpdateCard(c.Request.Context(), c.Param("space"), c.Param("id"), req.patch())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"card": card})
}

// handleMoveCard moves a card inside its column or to another one.
func (s *Server) handleMoveCard(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	if req.ColumnID == "" || req.Position == nil {
		s.respondError(c, models.Validation("column_id and position are required"))
		return
	}

	card, err := s.store.MoveCard(c.Request.Context(), c.Param("space"), c.Param("id"), req.ColumnID, *req.Position)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"card": card})
}

// handleDeleteCard removes a card from its column.
func (s *Server) handleDeleteCard(c *gin.Context) {
	if err := s.store.DeleteCard(c.Request.Context(), c.Param("space"), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
