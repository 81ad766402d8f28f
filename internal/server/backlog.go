package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scrumboard/internal/access"
	"scrumboard/internal/models"
)

type itemRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	AssigneeID  *string `json:"assignee_id"`
}

func (r itemRequest) newItem() models.NewItem {
	return models.NewItem{
		Title:       getString(r.Title),
		Description: getString(r.Description),
		AssigneeID:  nonEmpty(r.AssigneeID),
	}
}

func (r itemRequest) patch() models.ItemPatch {
	return models.ItemPatch{Title: r.Title, Description: r.Description, AssigneeID: r.AssigneeID}
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

// handleGetBacklog returns the ordered backlog of a space.
func (s *Server) handleGetBacklog(c *gin.Context) {
	items, err := s.store.GetBacklog(c.Request.Context(), c.Param("space"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"items": items})
}

// handleCreateBacklogItem appends an item to the backlog.
func (s *Server) handleCreateBacklogItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	item, err := s.store.CreateBacklogItem(c.Request.Context(), c.Param("space"), req.newItem(), access.CallerID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"item": item})
}

// handleUpdateBacklogItem applies a partial update to a backlog item.
func (s *Server) handleUpdateBacklogItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	item, err := s.store.UpdateBacklogItem(c.Request.Context(), c.Param("space"), c.Param("id"), req.patch())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"item": item})
}

// handleDeleteBacklogItem removes an item from the backlog.
func (s *Server) handleDeleteBacklogItem(c *gin.Context) {
	if err := s.store.DeleteBacklogItem(c.Request.Context(), c.Param("space"), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleReorderBacklog is the drag-and-drop entry point for the backlog.
func (s *Server) handleReorderBacklog(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	items, err := s.store.ReorderBacklog(c.Request.Context(), c.Param("space"), req.IDs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"items": items})
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func nonEmpty(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}
