package handlers

import (
	"net/http"
	"strconv"

	"au-panel/internal/api/middleware"
	"au-panel/internal/models"
	"au-panel/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type UserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password"`
	Enable   int    `json:"enable"`
	CID      string `json:"cid" binding:"required"`
	UTID     int    `json:"utid"`
}

func (r UserRequest) data() services.UserData {
	return services.UserData{
		Name:     r.Name,
		Email:    r.Email,
		Password: r.Password,
		Enable:   r.Enable,
		CID:      r.CID,
		UTID:     models.Role(r.UTID),
	}
}

// GetUsers lists the users visible to the caller.
func (h *UserHandler) GetUsers(c *gin.Context) {
	users, err := h.users.ListUsers(middleware.Identity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetUser returns one user.
func (h *UserHandler) GetUser(c *gin.Context) {
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	user, err := h.users.GetUser(middleware.Identity(c), uint(uid))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CreateUser adds a user.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	if req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
		return
	}

	user, err := h.users.CreateUser(middleware.Identity(c), req.data())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// UpdateUser rewrites a user. An empty password keeps the stored hash.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	user, err := h.users.UpdateUser(middleware.Identity(c), uint(uid), req.data())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser removes or disables a user depending on the caller's role.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	uid, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if err := h.users.DeleteUser(middleware.Identity(c), uint(uid)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
