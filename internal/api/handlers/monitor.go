package handlers

import (
	"net/http"

	"au-panel/internal/api/middleware"
	"au-panel/internal/services"

	"github.com/gin-gonic/gin"
)

type MonitorHandler struct {
	proxy *services.ProxyService
}

func NewMonitorHandler(proxy *services.ProxyService) *MonitorHandler {
	return &MonitorHandler{proxy: proxy}
}

type MonitorRequest struct {
	IP   string `json:"ip" binding:"required"`
	Port int    `json:"port" binding:"required"`
}

// Forward relays a monitoring action to a running instance and returns the
// upstream payload unchanged.
func (h *MonitorHandler) Forward(c *gin.Context) {
	aid, ok := paramUint(c, "aid")
	if !ok {
		return
	}

	var req MonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	payload, err := h.proxy.Forward(c.Request.Context(), middleware.Identity(c), c.Param("action"), aid, req.IP, req.Port)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}
