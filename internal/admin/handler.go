package admin

import (
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/internal/kyc"
	"nihao-carbon/carbon-trading/trading-backend/internal/pricefeed"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublicRoutes exposes the unauthenticated request-access form
func RegisterPublicRoutes(g *gin.RouterGroup, h *Handler) {
	g.POST("/access-requests", h.CreateAccessRequest)
}

// RegisterAdminRoutes exposes the admin console endpoints. The caller is
// expected to wrap the group with the admin middleware.
func RegisterAdminRoutes(g *gin.RouterGroup, h *Handler) {
	g.GET("/users", h.ListUsers)
	g.GET("/users/:id", h.GetUser)
	g.PUT("/users/:id/kyc-status", h.UpdateUserKYCStatus)

	g.GET("/access-requests", h.ListAccessRequests)
	g.GET("/access-requests/:id", h.GetAccessRequest)
	g.POST("/access-requests/:id/review", h.ReviewAccessRequest)

	g.GET("/config", h.GetConfig)
	g.PUT("/config", h.UpdateConfig)
	g.GET("/price-updates/status", h.FeedStatus)
}

func (h *Handler) CreateAccessRequest(c *gin.Context) {
	var form NewAccessRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body is required", "code": "MISSING_BODY"})
		return
	}
	if strings.TrimSpace(form.Entity) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entity field is required", "code": "MISSING_ENTITY"})
		return
	}
	if strings.TrimSpace(form.Contact) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contact field is required", "code": "MISSING_CONTACT"})
		return
	}
	if strings.TrimSpace(form.Position) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "position field is required", "code": "MISSING_POSITION"})
		return
	}
	if strings.TrimSpace(form.Reference) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference field is required", "code": "MISSING_REFERENCE"})
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(form.Contact)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email address format", "code": "INVALID_EMAIL"})
		return
	}

	req, err := h.service.CreateAccessRequest(c.Request.Context(), form)
	if err != nil {
		h.logger.Error("failed to create access request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access request", "code": "INTERNAL_ERROR"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":    "access request submitted successfully",
		"request_id": req.ID,
	})
}

func (h *Handler) ListAccessRequests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	filter := AccessRequestFilter{
		Status: AccessRequestStatus(c.Query("status")),
		Search: strings.TrimSpace(c.Query("search")),
		Limit:  limit,
		Offset: offset,
	}

	requests, total, err := h.service.ListAccessRequests(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_STATUS"})
			return
		}
		h.logger.Error("failed to list access requests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve access requests", "code": "INTERNAL_ERROR"})
		return
	}
	if requests == nil {
		requests = []AccessRequest{}
	}
	c.JSON(http.StatusOK, gin.H{
		"requests": requests,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (h *Handler) GetAccessRequest(c *gin.Context) {
	req, err := h.service.GetAccessRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "access request not found", "code": "NOT_FOUND"})
			return
		}
		h.logger.Error("failed to get access request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve access request", "code": "INTERNAL_ERROR"})
		return
	}
	c.JSON(http.StatusOK, req)
}

type reviewRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

func (h *Handler) ReviewAccessRequest(c *gin.Context) {
	var body reviewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required", "code": "MISSING_BODY"})
		return
	}

	review := Review{
		Status: AccessRequestStatus(body.Status),
		Notes:  body.Notes,
		Admin:  c.GetString("userID"),
	}
	req, err := h.service.ReviewAccessRequest(c.Request.Context(), c.Param("id"), review)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "access request not found", "code": "NOT_FOUND"})
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_STATUS"})
		default:
			h.logger.Error("failed to review access request", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update access request", "code": "INTERNAL_ERROR"})
		}
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users", "code": "LIST_USERS_ERROR"})
		return
	}
	if users == nil {
		users = []kyc.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.service.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found", "code": "USER_NOT_FOUND"})
			return
		}
		h.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user", "code": "GET_USER_ERROR"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type kycStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) UpdateUserKYCStatus(c *gin.Context) {
	var body kycStatusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required", "code": "MISSING_BODY"})
		return
	}

	user, err := h.service.UpdateUserKYCStatus(c.Request.Context(), c.Param("id"), kyc.KYCStatus(body.Status))
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found", "code": "USER_NOT_FOUND"})
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_STATUS"})
		default:
			h.logger.Error("failed to update user", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user", "code": "UPDATE_USER_ERROR"})
		}
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Config())
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var patch ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid configuration value", "code": "INVALID_CONFIG_VALUE"})
		return
	}

	config, err := h.service.UpdateConfig(patch)
	if err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_CACHE_DURATION"})
			return
		}
		h.logger.Error("failed to update config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update configuration", "code": "UPDATE_CONFIG_ERROR"})
		return
	}
	c.JSON(http.StatusOK, config)
}

func (h *Handler) FeedStatus(c *gin.Context) {
	statuses := h.service.FeedStatus()
	if statuses == nil {
		statuses = []pricefeed.FeedStatus{}
	}
	c.JSON(http.StatusOK, gin.H{"instruments": statuses})
}
