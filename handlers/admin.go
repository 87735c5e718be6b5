package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slack-code-review/services"
)

// AdminHandler は稼働中のキューに対する gc / flush を受け付ける
// serve が持つエンジンを通して消すので、次の保存で消したものが戻らない
type AdminHandler struct {
	Engine  *services.QueueEngine
	Garbage *services.GarbageCollector
	Karma   *services.Karma
	Token   string
}

func NewAdminHandler(engine *services.QueueEngine, garbage *services.GarbageCollector, karma *services.Karma, token string) *AdminHandler {
	return &AdminHandler{
		Engine:  engine,
		Garbage: garbage,
		Karma:   karma,
		Token:   token,
	}
}

type gcQuery struct {
	Expiration time.Duration `form:"expiration"`
}

type flushQuery struct {
	Karma bool `form:"karma"`
}

// Authorize は Authorization: Bearer <ADMIN_TOKEN> を確認する
func (h *AdminHandler) Authorize(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || h.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.Token)) != 1 {
		zap.S().Warnf("unauthorized admin request: %s %s", c.Request.Method, c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// HandleGC は期限切れのレビュー依頼を回収する。expiration を省略したら GARBAGE_EXPIRATION
func (h *AdminHandler) HandleGC(c *gin.Context) {
	var q gcQuery
	if err := c.ShouldBindQuery(&q); err != nil || q.Expiration < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiration"})
		return
	}
	if q.Expiration == 0 {
		q.Expiration = h.Garbage.Expiration
	}

	removed, err := h.Garbage.CollectOlderThan(c.Request.Context(), q.Expiration)
	if errors.Is(err, services.ErrSweepInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		zap.S().Errorf("admin gc error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": services.ReplyText(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed, "expiration": q.Expiration.String()})
}

// HandleFlush は全ルームのキューを空にする。karma=true ならスコアも消す
func (h *AdminHandler) HandleFlush(c *gin.Context) {
	var q flushQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid karma flag"})
		return
	}
	if q.Karma && h.Karma == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "karma scores are not stored"})
		return
	}

	rooms := len(h.Engine.Rooms())
	if err := h.Engine.Flush(c.Request.Context()); err != nil {
		zap.S().Errorf("admin flush error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": services.ReplyText(err)})
		return
	}
	if q.Karma {
		if err := h.Karma.Flush(c.Request.Context()); err != nil {
			zap.S().Errorf("admin karma flush error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "rooms": rooms})
			return
		}
	}
	zap.S().Infof("admin flush: rooms=%d, karma=%t", rooms, q.Karma)
	c.JSON(http.StatusOK, gin.H{"rooms": rooms, "karma": q.Karma})
}
