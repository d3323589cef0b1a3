package middleware

import (
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "X-Api-Key"

// CORSMiddleware enables cross-origin requests from the bot frontend.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, X-Api-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// APIKeyMiddleware guards the function-style endpoints with a shared key.
// The webhook route is mounted outside this middleware: the provider pushes
// anonymously.
func APIKeyMiddleware() gin.HandlerFunc {
	expected := os.Getenv("API_KEY")
	if expected == "" {
		log.Println("Warning: API_KEY not set, API endpoints are unauthenticated")
	}

	return func(c *gin.Context) {
		if expected != "" && c.GetHeader(apiKeyHeader) != expected {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing API key"})
			return
		}
		c.Next()
	}
}
