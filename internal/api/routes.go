package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tasaciones/server/internal/auth"
	"tasaciones/server/internal/metrics"
)

// NewRouter builds the engine with CORS, metrics and optional auth applied
func NewRouter(handler *Handler, verifier *auth.Verifier, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	SetupRoutes(router, handler, verifier)
	return router
}

func SetupRoutes(router *gin.Engine, handler *Handler, verifier *auth.Verifier) {
	api := router.Group("/api")
	api.Use(auth.OptionalAuth(verifier))
	{
		api.GET("/valuation", handler.GetValuation)
		api.POST("/valuation/new", handler.NewValuation)
		api.GET("/valuation/proximity", handler.GetProximity)
		api.PATCH("/target", handler.UpdateTarget)

		api.POST("/comparables", handler.AddComparable)
		api.PATCH("/comparables/:id", handler.UpdateComparable)
		api.DELETE("/comparables/:id", handler.DeleteComparable)

		api.GET("/valuations", handler.ListValuations)
		api.POST("/valuations", handler.SaveValuation)
		api.DELETE("/valuations/:id", handler.DeleteValuation)
		api.POST("/valuations/:id/load", handler.LoadValuation)

		api.POST("/import", handler.ImportSpreadsheet)
		api.POST("/session/logout", handler.Logout)
		api.GET("/imagekit-auth", handler.ImageKitAuth)
	}
}
