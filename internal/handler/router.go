package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rstamps01/rag-app-sub001/internal/middleware"
)

type RouterDeps struct {
	Documents       *DocumentHandler
	Queries         *QueryHandler
	Monitor         *MonitorHandler
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	limited := api.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimitWindow))
	limited.POST("/documents", deps.Documents.Upload)
	limited.POST("/query", deps.Queries.Ask)

	api.GET("/documents", deps.Documents.List)
	api.GET("/documents/:id", deps.Documents.Get)
	api.DELETE("/documents/:id", deps.Documents.Delete)

	api.GET("/queries", deps.Queries.List)
	api.GET("/queries/:id", deps.Queries.Get)

	api.GET("/monitor/stats", deps.Monitor.Stats)
	api.GET("/monitor/events", deps.Monitor.Stream)
	api.GET("/monitor/events/:id", deps.Monitor.History)
}
