package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatrelay/services"
)

const version = "0.1.0"

// Health reports whether the history store is reachable.
func Health(history *services.HistoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		check := gin.H{"status": "pass"}

		start := time.Now()
		if err := history.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			check = gin.H{"status": "fail", "message": "connection failed"}
		} else {
			check["latency"] = time.Since(start).String()
		}

		c.JSON(code, gin.H{
			"status":    status,
			"version":   version,
			"checks":    gin.H{"store": check},
			"timestamp": services.GetCurrentTimestamp(),
		})
	}
}
