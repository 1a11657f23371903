package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ipad-status-backend/internal/catalog"
	"ipad-status-backend/internal/holding"
)

// GetStatus handles GET /data/ and GET /api/status. The response is always
// 200; the level in msg tells the client how much of the data is there.
func (h *Handler) GetStatus(c *gin.Context) {
	result := h.reader.GetStatus(c.Request.Context(), h.deviceIDs)
	c.JSON(http.StatusOK, result.Payload())
}

type devicesResponse struct {
	Data []holding.Holding     `json:"data"`
	Msg  catalog.StatusMessage `json:"msg"`
}

// GetDevices handles GET /api/devices: the live status as holdings, filtered,
// searched and sorted by the query parameters.
func (h *Handler) GetDevices(c *gin.Context) {
	result := h.reader.GetStatus(c.Request.Context(), h.deviceIDs)

	holdings := holding.FromRecords(result.Records, h.now(), h.loc)
	if c.Query("type") != "" || c.Query("state") != "" {
		holdings = holding.Match(holdings, c.Query("type"), c.Query("state"))
	}
	if q := c.Query("q"); q != "" {
		holdings = holding.Search(holdings, q)
	}
	holding.Sort(holdings, holding.ParseSortKey(c.Query("sort")))

	c.JSON(http.StatusOK, devicesResponse{
		Data: holdings,
		Msg:  result.Payload().Msg,
	})
}
