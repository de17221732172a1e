package stats

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	aggregator *Aggregator
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{aggregator: aggregator}
}

func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	g.GET("/market", h.Market)
}

func (h *Handler) Market(c *gin.Context) {
	statistics, err := h.aggregator.MarketStatistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics", "code": "STATS_UNAVAILABLE"})
		return
	}
	c.JSON(http.StatusOK, statistics)
}
