package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridequery/internal/service"
)

// RideHandler serves single rides
type RideHandler struct {
	searchService SearchService
}

// NewRideHandler creates a new ride handler
func NewRideHandler(searchService SearchService) *RideHandler {
	return &RideHandler{searchService: searchService}
}

// Get handles GET /api/v1/rides/:id?requester_id=
func (h *RideHandler) Get(c *gin.Context) {
	rideID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || rideID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ride ID"})
		return
	}

	detail, err := h.searchService.GetRide(c.Request.Context(), rideID, c.Query("requester_id"))
	if errors.Is(err, service.ErrRideNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ride not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get ride: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, detail)
}
