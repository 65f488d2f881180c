package controllers

import (
	"net/http"

	"traceback/models"
	"traceback/utils/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateDynamicLink registers a campaign path with its follow link.
func (s *Server) CreateDynamicLink(c *gin.Context) {
	var link models.DynamicLink
	if err := c.ShouldBindJSON(&link); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid payload",
			"details": validationDetails(err),
		})
		return
	}

	link.Prepare()
	if msgs := link.Validate(); len(msgs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msgs})
		return
	}

	existing, err := link.FindDynamicLinkByPath(s.DB, link.Path)
	if err != nil {
		logging.Default().Error("error checking campaign path", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Path already registered"})
		return
	}

	created, err := link.SaveDynamicLink(s.DB)
	if err != nil {
		logging.Default().Error("error saving campaign link", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	invalidateLinkPathCache(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"status": http.StatusCreated, "response": created})
}

func (s *Server) GetDynamicLinks(c *gin.Context) {
	links, err := (&models.DynamicLink{}).FindAllDynamicLinks(s.DB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error retrieving campaign links"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "response": links})
}

func (s *Server) GetDynamicLink(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid link ID"})
		return
	}

	link, err := (&models.DynamicLink{}).FindDynamicLinkByID(s.DB, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error retrieving campaign link"})
		return
	}
	if link == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "response": link})
}

// GetDynamicLinkAnalytics returns the per-day event counters for one link.
func (s *Server) GetDynamicLinkAnalytics(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid link ID"})
		return
	}

	rows, err := (&models.LinkAnalytics{}).FindLinkAnalytics(s.DB, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error retrieving link analytics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "response": rows})
}

func (s *Server) DeleteDynamicLink(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid link ID"})
		return
	}

	deleted, err := (&models.DynamicLink{}).DeleteDynamicLink(s.DB, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error deleting campaign link"})
		return
	}
	if deleted == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return
	}

	invalidateLinkPathCache(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "response": "Campaign link deleted"})
}
