package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health 存活检查。
func Health(c *gin.Context) {
	respond(c, http.StatusOK, "ok", gin.H{"status": "healthy"})
}
