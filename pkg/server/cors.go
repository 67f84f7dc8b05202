package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig controls cross-origin access to the API
type CORSConfig struct {
	// AllowedOrigins lists permitted origins; ["*"] allows any
	AllowedOrigins []string
	// AllowCredentials echoes the origin instead of "*" when true
	AllowCredentials bool
}

// DefaultCORSConfig allows any origin with credentials
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
	}
}

// CORSMiddleware handles preflight requests and sets CORS headers on
// responses. A nil config uses DefaultCORSConfig.
func CORSMiddleware(config *CORSConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultCORSConfig()
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowed := ""
		for _, candidate := range config.AllowedOrigins {
			if candidate == "*" {
				if config.AllowCredentials {
					// "*" is invalid with credentials; echo the origin
					allowed = origin
				} else {
					allowed = "*"
				}
				break
			}
			if strings.EqualFold(candidate, origin) {
				allowed = origin
				break
			}
		}
		if allowed == "" {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", allowed)
		if config.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id")
			c.Header("Access-Control-Max-Age", "86400")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
