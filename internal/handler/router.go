package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docfinder/internal/middleware"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Search    *SearchHandler
	JWTSecret []byte
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	group := api.Group("")
	if len(deps.JWTSecret) > 0 {
		group.Use(middleware.JWTAuth(deps.JWTSecret))
	}
	limited := group.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimit))
	read := middleware.RequireScope(middleware.ScopeRead)
	write := middleware.RequireScope(middleware.ScopeWrite)

	limited.POST("/documents", write, deps.Documents.Ingest)
	limited.POST("/documents/upload", write, deps.Documents.Upload)
	group.DELETE("/documents/*id", write, deps.Documents.Delete)
	group.GET("/collection", read, deps.Documents.Collection)

	limited.POST("/retrieve", read, deps.Search.Retrieve)
	limited.POST("/query", read, deps.Search.Query)
	group.GET("/models", read, deps.Search.Models)
}
