package router

import (
	"github.com/gin-gonic/gin"

	"reviewloop.app/reviewd/internal/http/handler"
)

func ReviewRouter(rg *gin.RouterGroup, h *handler.ReviewHandler, stream *handler.StreamHandler) {
	rg.POST("", h.Submit)
	rg.POST("/repair", h.Repair)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/chunks", h.Chunks)
	rg.GET("/:id/stream", stream.Stream)
	rg.DELETE("/:id", h.Delete)
}
