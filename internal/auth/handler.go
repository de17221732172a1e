package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the auth endpoints on the engine root
func RegisterRoutes(r *gin.Engine, h *Handler) {
	group := r.Group("/auth")
	group.POST("/login", h.Login)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required", "code": "MISSING_CREDENTIALS"})
		return
	}

	user, token, err := h.service.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password", "code": "INVALID_CREDENTIALS"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed", "code": "LOGIN_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}
