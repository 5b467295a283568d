package server

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/looplj/lifeline/internal/server/api"
	"github.com/looplj/lifeline/internal/server/middleware"
)

var errRouteNotFound = errors.New("route not found")

type Handlers struct {
	fx.In

	Collections *api.CollectionHandlers
	System      *api.SystemHandlers
}

func SetupRoutes(server *Server, handlers Handlers) {
	server.Use(middleware.AccessLog())
	server.Use(middleware.WithLoggingTracing(server.Config.Trace))
	server.Use(middleware.WithMetrics())

	if server.Config.CORS.Enabled {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = server.Config.CORS.AllowedOrigins
		corsConfig.AllowMethods = server.Config.CORS.AllowedMethods
		corsConfig.AllowHeaders = server.Config.CORS.AllowedHeaders
		corsConfig.ExposeHeaders = server.Config.CORS.ExposedHeaders
		corsConfig.AllowCredentials = server.Config.CORS.AllowCredentials
		corsConfig.MaxAge = server.Config.CORS.MaxAge

		corsHandler := cors.New(corsConfig)
		server.Use(corsHandler)
		server.OPTIONS("*any", corsHandler)
	}

	server.NoRoute(func(c *gin.Context) {
		api.JSONError(c, http.StatusNotFound, errRouteNotFound)
	})

	publicGroup := server.Group("", middleware.WithTimeout(server.Config.RequestTimeout))
	{
		publicGroup.GET("/health", handlers.System.Health)
	}

	apiGroup := server.Group("/api", middleware.WithTimeout(server.Config.RequestTimeout))
	{
		apiGroup.GET("/collections", handlers.Collections.List)
		apiGroup.GET("/collections/:name", handlers.Collections.Get)
		apiGroup.POST("/collections/:name/refresh", handlers.Collections.Refresh)
		apiGroup.POST("/collections/:name/records", handlers.Collections.CreateRecord)
		apiGroup.PUT("/collections/:name/records/:id", handlers.Collections.UpsertRecord)
		apiGroup.PATCH("/collections/:name/records/:id", handlers.Collections.UpdateRecord)
		apiGroup.DELETE("/collections/:name/records/:id", handlers.Collections.DeleteRecord)
		apiGroup.POST("/incident-reports", handlers.Collections.CreateIncidentReport)
	}

	// Streams stay open for as long as the client listens.
	streamGroup := server.Group("/api")
	{
		streamGroup.GET("/collections/:name/stream", handlers.Collections.Stream)
		streamGroup.GET("/collections/:name/ws", handlers.Collections.WebSocket)
	}
}
