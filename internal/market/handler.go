package market

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers market routes on the given group
func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	g.GET("/offers", h.ListOffers)
	g.GET("/sellers", h.ListSellers)
}

// ListOffers returns the current offer book, optionally filtered by type
func (h *Handler) ListOffers(c *gin.Context) {
	if t := c.Query("type"); t != "" {
		ct := CertificateType(t)
		if ct != TypeCEA && ct != TypeEUA {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown certificate type", "code": "INVALID_TYPE"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"offers": h.service.OffersByType(ct)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": h.service.Offers()})
}

// ListSellers returns the market participant table
func (h *Handler) ListSellers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sellers": Sellers()})
}
