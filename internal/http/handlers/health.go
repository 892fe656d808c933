package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	ping func() error
}

func NewHealthHandler(ping func() error) *HealthHandler {
	return &HealthHandler{ping: ping}
}

// Health is the liveness probe; it also reports store reachability.
func (h *HealthHandler) Health(ctx *gin.Context) {
	if h.ping != nil {
		if err := h.ping(); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, Response{
				Success: false,
				Message: "database unreachable",
			})
			return
		}
	}

	ctx.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"status": "ok"},
	})
}
