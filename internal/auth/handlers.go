package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers contains HTTP handlers for authentication
type Handlers struct {
	service *Service
}

// NewHandlers creates new auth handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Login handles operator login
// POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	response, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ChangePassword handles password change
// POST /api/auth/change-password
func (h *Handlers) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), req); err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password changed, sign in again"})
}

// Me returns the authenticated operator
// GET /api/auth/me
func (h *Handlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": GetUsername(c)})
}

// RegisterRoutes registers auth routes
func (h *Handlers) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/auth")
	auth.POST("/login", h.Login)

	protected := auth.Group("")
	protected.Use(Middleware(h.service))
	protected.GET("/me", h.Me)
	protected.POST("/change-password", h.ChangePassword)
}

func writeAuthError(c *gin.Context, err error) {
	var authErr AuthError
	if !errors.As(err, &authErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL_ERROR",
			"message": "authentication failed",
		})
		return
	}

	status := http.StatusUnauthorized
	switch authErr.Code {
	case ErrWeakPassword.Code:
		status = http.StatusBadRequest
	case ErrNotConfigured.Code:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"error":   authErr.Code,
		"message": authErr.Message,
	})
}
