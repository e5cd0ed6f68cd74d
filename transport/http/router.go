package http

import (
	"github.com/gin-gonic/gin"

	"github.com/sofrecom/ragcore"
)

func AddRouters(r *gin.Engine, endpoints ragcore.EndpointSet) {
	// Dialogue-engine action server
	r.POST("/webhook", ActionHandler(endpoints.HandleAction))

	// RESTful API routes
	api := r.Group("/api")
	{
		api.POST("/rag/query", QueryHandler(endpoints.Query))
		api.GET("/rag/search", SearchHandler(endpoints.Search))
		api.GET("/rag/count", CountHandler(endpoints.Count))
		api.DELETE("/rag/documents", ResetHandler(endpoints.Reset))
	}
}
