package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"slack-code-review/services"
)

const headerRequestID = "X-Request-ID"

// Server はルーティングに必要なハンドラ一式
type Server struct {
	GitHub  *GitHubHandler
	Slack   *SlackHandler
	Garbage *services.GarbageCollector // nil ならヘルスチェックに回収状況を出さない
	Admin   *AdminHandler              // nil なら /admin を公開しない
}

// NewRouter はginのルーターを組み立てる
func NewRouter(s Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(zap.L()))

	r.GET("/health", s.health)
	r.POST("/webhook", s.GitHub.HandleWebhook)
	if s.Slack != nil {
		r.POST("/slack/events", s.Slack.HandleEvents)
		r.POST("/slack/command", s.Slack.HandleSlashCommand)
	}
	if s.Admin != nil {
		admin := r.Group("/admin", s.Admin.Authorize)
		admin.POST("/gc", s.Admin.HandleGC)
		admin.POST("/flush", s.Admin.HandleFlush)
	}
	return r
}

func (s Server) health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"rooms":  len(s.GitHub.Engine.Rooms()),
	}
	if s.Garbage != nil {
		body["gc_sweeps"] = s.Garbage.Sweeps()
		body["gc_last_collection"] = s.Garbage.LastCollection()
	}
	c.JSON(http.StatusOK, body)
}

// RequestLogger はリクエストごとにIDを振ってアクセスログを出す
func RequestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("uri", c.Request.RequestURI),
			zap.String("remote_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.Int64("bytes_in", c.Request.ContentLength),
			zap.Int("bytes_out", c.Writer.Size()),
		}
		if len(c.Errors) > 0 {
			l.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		l.Info("request completed", fields...)
	}
}
