package pricefeed

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	poller *Poller
}

func NewHandler(poller *Poller) *Handler {
	return &Handler{poller: poller}
}

// RegisterRoutes registers the price endpoints on the given group
func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	g.GET("/:instrument/price", h.GetPrice)
	g.GET("/:instrument/history", h.GetHistory)
}

func (h *Handler) resolveClient(c *gin.Context) (*Client, bool) {
	instrument := Instrument(c.Param("instrument"))
	client, ok := h.poller.Client(instrument)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument", "code": "UNKNOWN_INSTRUMENT"})
		return nil, false
	}
	return client, true
}

// GetPrice serves the latest reference price, preferring the poller's most
// recent observation and falling back to an on-demand fetch before the first
// poll completes.
func (h *Handler) GetPrice(c *gin.Context) {
	client, ok := h.resolveClient(c)
	if !ok {
		return
	}
	if quote := h.poller.Latest(client.Instrument()); quote != nil {
		c.JSON(http.StatusOK, quote)
		return
	}
	c.JSON(http.StatusOK, client.FetchPrice(c.Request.Context()))
}

// GetHistory serves daily closing prices for a date range
func (h *Handler) GetHistory(c *gin.Context) {
	client, ok := h.resolveClient(c)
	if !ok {
		return
	}
	start := c.Query("start_date")
	end := c.Query("end_date")

	entries, err := client.FetchHistory(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "historical data unavailable", "code": "HISTORY_UNAVAILABLE"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       entries,
		"start_date": start,
		"end_date":   end,
		"count":      len(entries),
	})
}
