package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"reviewloop.app/reviewd/internal/http/handler"
	"reviewloop.app/reviewd/internal/service"
)

func SetupRoutes(router *gin.Engine, reviews service.ReviewService, redisClient *redis.Client) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		reviewHandler := handler.NewReviewHandler(reviews)
		streamHandler := handler.NewStreamHandler(redisClient, reviews)
		ReviewRouter(v1.Group("/reviews"), reviewHandler, streamHandler)
	}
}
