package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridequery/internal/model"
	"ridequery/internal/service"
)

// RequesterHandler handles the location and settings flows
type RequesterHandler struct {
	searchService SearchService
}

// NewRequesterHandler creates a new requester handler
func NewRequesterHandler(searchService SearchService) *RequesterHandler {
	return &RequesterHandler{searchService: searchService}
}

// Get handles GET /api/v1/requesters/:id
func (h *RequesterHandler) Get(c *gin.Context) {
	rc, err := h.searchService.GetRequester(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondRequesterError(c, err)
		return
	}
	c.JSON(http.StatusOK, rc)
}

// UpdateLocation handles PUT /api/v1/requesters/:id/location
func (h *RequesterHandler) UpdateLocation(c *gin.Context) {
	var req model.LocationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	rc, err := h.searchService.UpdateLocation(c.Request.Context(), c.Param("id"), req.Lat, req.Lng)
	if err != nil {
		respondRequesterError(c, err)
		return
	}
	c.JSON(http.StatusOK, rc)
}

// UpdateSettings handles PUT /api/v1/requesters/:id/settings
func (h *RequesterHandler) UpdateSettings(c *gin.Context) {
	var req model.SettingsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.RadiusKm == nil && req.Units == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	rc, err := h.searchService.UpdateSettings(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondRequesterError(c, err)
		return
	}
	c.JSON(http.StatusOK, rc)
}

func respondRequesterError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrRequesterRequired) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
