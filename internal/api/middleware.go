package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/client"
	"go.uber.org/zap"
)

const signatureHeader = "X-Twilio-Signature"

// loggerMiddleware logs every request except metrics scrapes and health checks
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if strings.Contains(path, "/metrics") || path == "/health" {
			return
		}

		logger.Info("request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// signatureMiddleware rejects webhook requests whose provider signature does
// not match the public URL they were addressed to
func signatureMiddleware(publicURL, authToken string, logger *zap.Logger) gin.HandlerFunc {
	validator := client.NewRequestValidator(authToken)

	return func(c *gin.Context) {
		params := make(map[string]string)
		if c.Request.Method == http.MethodPost {
			if err := c.Request.ParseForm(); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid form body"})
				return
			}
			for k, v := range c.Request.PostForm {
				if len(v) > 0 {
					params[k] = v[0]
				}
			}
		}

		url := publicURL + c.Request.URL.RequestURI()
		if !validator.Validate(url, params, c.GetHeader(signatureHeader)) {
			logger.Warn("rejected webhook with invalid signature",
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "Invalid signature"})
			return
		}

		c.Next()
	}
}
