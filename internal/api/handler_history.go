package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func listLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}

// GetDeviceHistory handles GET /api/devices/:id/history.
func (h *Handler) GetDeviceHistory(c *gin.Context) {
	limit, ok := listLimit(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	// Holding IDs are stored as the catalog prints them.
	deviceID := strings.ToUpper(strings.TrimSpace(c.Param("id")))
	history, err := h.store.DeviceHistory(c.Request.Context(), deviceID, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	response := make([]historyResponse, 0, len(history))
	for _, rec := range history {
		response = append(response, historyResponse{
			State:       rec.State,
			RawState:    rec.RawState,
			DueDate:     rec.DueDate,
			PeriodStart: rec.PeriodStart.In(h.loc).Format(time.RFC3339),
			PeriodEnd:   rec.PeriodEnd.In(h.loc).Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, response)
}

type historyResponse struct {
	State       string `json:"state"`
	RawState    string `json:"rawState"`
	DueDate     string `json:"date"`
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
}

// GetPolls handles GET /api/polls.
func (h *Handler) GetPolls(c *gin.Context) {
	limit, ok := listLimit(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	polls, err := h.store.RecentPolls(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve polls"})
		return
	}
	c.JSON(http.StatusOK, polls)
}
