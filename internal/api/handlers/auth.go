package handlers

import (
	"net/http"

	"au-panel/internal/api/middleware"
	"au-panel/internal/cache"
	"au-panel/internal/models"
	"au-panel/internal/services"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth     *services.AuthService
	sessions *cache.SessionCache
}

func NewAuthHandler(auth *services.AuthService, sessions *cache.SessionCache) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions}
}

type LoginRequest struct {
	Username string `json:"userName" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login authenticates and returns an opaque session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	token, user, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, User: user})
}

// Logout revokes the caller's session token.
func (h *AuthHandler) Logout(c *gin.Context) {
	if !h.auth.Logout(middleware.Token(c)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Validate confirms the session is live and slides its expiry forward.
func (h *AuthHandler) Validate(c *gin.Context) {
	if !h.sessions.Renew(middleware.Token(c)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "user": middleware.Identity(c)})
}

// Me returns the caller's identity.
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.Identity(c))
}
