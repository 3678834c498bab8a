package logger

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type contextKey string

const loggerContextKey contextKey = "logger.logger"

var defaultLogger = logrus.New()
var defaultEntry = logrus.NewEntry(defaultLogger)

// Configure 按配置设置日志级别与格式
func Configure(level, format string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		defaultLogger.SetLevel(lvl)
	}
	if strings.EqualFold(format, "json") {
		defaultLogger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		defaultLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func SetLoggerOptions(optionsFunc func(logger *logrus.Logger)) {
	optionsFunc(defaultLogger)
}

func NewContextWithFields(parent context.Context, fields logrus.Fields) context.Context {
	return context.WithValue(parent, loggerContextKey, For(parent).WithFields(fields))
}

func For(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return defaultEntry
	}

	// *gin.Context 取底层 request context
	if gc, ok := ctx.(*gin.Context); ok {
		if gc.Request == nil {
			return defaultEntry
		}
		ctx = gc.Request.Context()
	}

	if entry, ok := ctx.Value(loggerContextKey).(*logrus.Entry); ok {
		return entry.WithContext(ctx)
	}
	return defaultEntry.WithContext(ctx)
}

// Middleware 为每个请求挂一个带请求字段的 logger，并在结束时记录耗时
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := NewContextWithFields(c.Request.Context(), logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"ip":     c.ClientIP(),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		entry := For(c).WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("request finished with errors")
			return
		}
		entry.Debug("request finished")
	}
}
