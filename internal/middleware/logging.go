package middleware

import (
	"time"

	"github.com/ayoubdya/Moroccan-AI-Law-Assistant/pkg/log"
	"github.com/gin-gonic/gin"
)

// RequestLogger logs one structured line per request. Bodies are not logged:
// chat requests carry personal legal questions.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		log.Infow("http request",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	}
}
