package portfolio

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the portfolio endpoints. The purchase endpoint
// lives under the market group and is registered separately by the caller.
func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	g.GET("", h.Get)
	g.POST("/convert", h.Convert)
	g.POST("/verify", h.Verify)
	g.POST("/surrender", h.Surrender)
	g.GET("/emissions", h.Emissions)
}

func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "UNAUTHENTICATED"})
		return "", false
	}
	return userID, true
}

type certificateRequest struct {
	CertificateID uuid.UUID `json:"certificate_id" binding:"required"`
}

type purchaseRequest struct {
	OfferID uuid.UUID `json:"offer_id" binding:"required"`
}

func (h *Handler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	p, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load portfolio", "code": "PORTFOLIO_UNAVAILABLE"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// Purchase buys a listed offer in full
func (h *Handler) Purchase(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offer_id is required", "code": "INVALID_REQUEST"})
		return
	}

	result, err := h.service.Purchase(c.Request.Context(), userID, req.OfferID)
	if err != nil {
		h.writeTradeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Convert(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req certificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "certificate_id is required", "code": "INVALID_REQUEST"})
		return
	}

	cert, err := h.service.Convert(c.Request.Context(), userID, req.CertificateID)
	if err != nil {
		h.writeTradeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (h *Handler) Verify(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req certificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "certificate_id is required", "code": "INVALID_REQUEST"})
		return
	}

	cert, err := h.service.Verify(c.Request.Context(), userID, req.CertificateID)
	if err != nil {
		h.writeTradeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (h *Handler) Surrender(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req certificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "certificate_id is required", "code": "INVALID_REQUEST"})
		return
	}

	emissions, err := h.service.Surrender(c.Request.Context(), userID, req.CertificateID)
	if err != nil {
		h.writeTradeError(c, err)
		return
	}
	c.JSON(http.StatusOK, emissions)
}

func (h *Handler) Emissions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	emissions, err := h.service.EmissionsFor(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load emissions", "code": "EMISSIONS_UNAVAILABLE"})
		return
	}
	c.JSON(http.StatusOK, emissions)
}

func (h *Handler) writeTradeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrOfferNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "offer no longer available", "code": "OFFER_NOT_FOUND"})
	case errors.Is(err, ErrCertificateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found", "code": "CERTIFICATE_NOT_FOUND"})
	case errors.Is(err, ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance", "code": "INSUFFICIENT_BALANCE"})
	case errors.Is(err, ErrInvalidCertificateState):
		c.JSON(http.StatusConflict, gin.H{"error": "certificate not eligible for this operation", "code": "INVALID_CERTIFICATE_STATE"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed", "code": "INTERNAL_ERROR"})
	}
}
