package api

import (
	"context"

	"arxiv_rag_go_backend/cmd/api/config"
	"arxiv_rag_go_backend/internal/observability"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

func SetupRoutes(r *gin.Engine, cfg *config.Config, db Pinger, metrics *observability.Metrics) {
	r.POST("/ask", askHandler())
	r.GET("/papers/:arxiv_id", getPaperHandler())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthHandler(cfg.AppVersion, db))
	}

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
}
