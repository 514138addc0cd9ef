package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridequery/internal/model"
	"ridequery/internal/repository"
)

// FeedbackHandler handles feedback-related HTTP requests
type FeedbackHandler struct {
	searchService SearchService
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(searchService SearchService) *FeedbackHandler {
	return &FeedbackHandler{searchService: searchService}
}

// Submit handles POST /api/v1/feedback
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	err := h.searchService.LogFeedback(c.Request.Context(), &req)
	if errors.Is(err, repository.ErrSearchNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown search_id"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log feedback: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.FeedbackResponse{
		Success: true,
		Message: "Feedback logged successfully",
	})
}
