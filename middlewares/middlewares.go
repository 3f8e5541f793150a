package middlewares

import (
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// This enables us interact with the React frontend
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Allowed frontend origins
		allowedOrigins := []string{
			"http://localhost:5173", // local dev (vite)
			"http://localhost:3000",
		}
		if extra := strings.TrimSpace(os.Getenv("CLIENT_URL")); extra != "" {
			allowedOrigins = append(allowedOrigins, extra)
		}

		// Dynamically allow only the correct origins
		for _, o := range allowedOrigins {
			if o == origin {
				c.Writer.Header().Set("Access-Control-Allow-Origin", o)
				break
			}
		}

		// Required CORS headers
		c.Writer.Header().Set("Vary", "Origin")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Authorization, Content-Length, X-CSRF-Token, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods",
			"POST, GET, OPTIONS, PUT, PATCH, DELETE")

		// Handle preflight OPTIONS request
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
