package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const healthPingTimeout = 2 * time.Second

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

func healthHandler(version string, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()

		resp := HealthResponse{Status: "ok", Version: version, Database: "healthy"}
		status := http.StatusOK
		if err := db.Ping(ctx); err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("Database health check failed")
			resp.Status = "degraded"
			resp.Database = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	}
}
