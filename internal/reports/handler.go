package reports

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the report export endpoints
func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	g.GET("/transactions/export", h.ExportTransactions)
}

func (h *Handler) ExportTransactions(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "UNAUTHENTICATED"})
		return
	}

	format := ExportFormat(c.DefaultQuery("format", string(FormatXLSX)))
	export, err := h.service.ExportTransactions(c.Request.Context(), userID, format)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "format must be xlsx or pdf", "code": "INVALID_FORMAT"})
			return
		}
		h.logger.Error("statement export failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export transactions", "code": "EXPORT_ERROR"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Data(http.StatusOK, export.ContentType, export.Data)
}
