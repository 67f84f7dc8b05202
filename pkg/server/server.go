// Package server exposes the assistant over an HTTP API
package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mitralabs/mitra/pkg/assistant"
	"github.com/mitralabs/mitra/pkg/config"
	"github.com/mitralabs/mitra/pkg/logger"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("server")
}

// queryRequest is the body of POST /api/query
type queryRequest struct {
	Query string `json:"query" binding:"required"`
}

// NewRouter builds the HTTP routes over the assistant
func NewRouter(a *assistant.Assistant) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(CORSMiddleware(nil))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/query", func(c *gin.Context) {
			var req queryRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
				return
			}

			resp, err := a.ProcessQuery(c.Request.Context(), req.Query)
			if err != nil {
				log.WithError(err).Error("Query processing failed")
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, resp)
		})

		api.GET("/tools", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"tools": a.Tools()})
		})

		api.GET("/servers", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"servers": a.Sessions()})
		})

		api.GET("/resources", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"resources": a.Resources(c.Request.Context())})
		})

		api.GET("/resources/read", func(c *gin.Context) {
			serverID := c.Query("server")
			uri := c.Query("uri")
			if serverID == "" || uri == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "server and uri are required"})
				return
			}
			content, err := a.ReadResource(c.Request.Context(), serverID, uri)
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"server_id": serverID, "uri": uri, "content": content})
		})

		api.GET("/invocations", func(c *gin.Context) {
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
			records, err := a.RecentInvocations(c.Request.Context(), limit)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"invocations": records})
		})

		api.POST("/rediscover", func(c *gin.Context) {
			if err := a.Rediscover(c.Request.Context()); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"tools": len(a.Tools())})
		})
	}

	return router
}

// Start runs the HTTP server until it fails or the process exits
func Start(cfg *config.Config, a *assistant.Assistant) error {
	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(a)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.WithField("addr", addr).Info("HTTP server listening")
	return router.Run(addr)
}

// requestLogger logs one line per request with method, path, status, latency,
// and the client IP as gin resolves it.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      path,
			"status":    c.Writer.Status(),
			"clientIP":  c.ClientIP(),
			"latencyMs": time.Since(start).Milliseconds(),
		}).Info("Request handled")
	}
}
