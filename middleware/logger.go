package middleware

import (
	"time"

	"github.com/TIANLI0/maskpaint/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger Zap日志中间件。指针事件频率很高，成功的指针请求降为 Debug。
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		requestID := utils.NextRequestID()
		c.Set("request_id", requestID)

		c.Next()

		fields := []zap.Field{
			zap.Int64("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("cost", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			utils.Logger.Error("request", fields...)
		case c.FullPath() == "/api/v1/pointer" && c.Writer.Status() < 400:
			utils.Logger.Debug("request", fields...)
		default:
			utils.Logger.Info("request", fields...)
		}
	}
}
