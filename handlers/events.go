package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"

	"slack-code-review/models"
	"slack-code-review/services"
)

// SlackHandler はSlackのイベントとスラッシュコマンドを受ける
type SlackHandler struct {
	Router        *CommandRouter
	Notifier      services.Notifier
	Users         services.UserDirectory // nil ならユーザーIDをそのまま名前にする
	SigningSecret string                 // 空なら署名を検証しない
}

func NewSlackHandler(router *CommandRouter, notifier services.Notifier, users services.UserDirectory, signingSecret string) *SlackHandler {
	return &SlackHandler{
		Router:        router,
		Notifier:      notifier,
		Users:         users,
		SigningSecret: signingSecret,
	}
}

// Slackイベントを処理するハンドラ
func (h *SlackHandler) HandleEvents(c *gin.Context) {
	body, ok := h.readVerifiedBody(c)
	if !ok {
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		zap.S().Warnf("slack event parse error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	switch event.Type {
	// URL検証チャレンジへの応答
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		c.String(http.StatusOK, "%s", challenge.Challenge)
		return

	case slackevents.CallbackEvent:
		if ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			h.handleMessage(c.Request.Context(), ev)
		}
	}

	c.Status(http.StatusOK)
}

func (h *SlackHandler) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	// ボット自身の発言や編集・削除は無視する
	if ev.BotID != "" || ev.SubType != "" || ev.User == "" {
		return
	}

	user := models.User{ID: ev.User, Name: h.userName(ctx, ev.User), Room: ev.Channel}
	msgs, ok := h.Router.Dispatch(ctx, user, ev.Text)
	if !ok {
		return
	}
	zap.S().Debugf("slack message handled: channel=%s, user=%s, text=%q", ev.Channel, user.Name, ev.Text)

	if err := services.Deliver(ctx, h.Notifier, msgs); err != nil {
		zap.S().Warnf("slack reply error (channel: %s): %v", ev.Channel, err)
	}
}

// HandleSlashCommand は /cr <コマンド> を処理する。ルームへの返信はレスポンスで返し、DMだけ別に送る
func (h *SlackHandler) HandleSlashCommand(c *gin.Context) {
	if _, ok := h.readVerifiedBody(c); !ok {
		return
	}

	cmd, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		zap.S().Warnf("slash command parse error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	zap.S().Infof("slack command received: command=%s, text=%s, channel=%s, user=%s",
		cmd.Command, cmd.Text, cmd.ChannelID, cmd.UserID)

	ctx := c.Request.Context()
	user := models.User{ID: cmd.UserID, Name: cmd.UserName, Room: cmd.ChannelID}
	if user.Name == "" {
		user.Name = h.userName(ctx, cmd.UserID)
	}

	msgs, ok := h.Router.Dispatch(ctx, user, cmd.Text)
	if !ok {
		c.JSON(http.StatusOK, slack.Msg{ResponseType: slack.ResponseTypeEphemeral, Text: helpText})
		return
	}

	var (
		lines  []string
		direct []models.Message
	)
	for _, msg := range msgs {
		if msg.IsDirect() || msg.Channel != cmd.ChannelID {
			direct = append(direct, msg)
			continue
		}
		lines = append(lines, msg.Text)
	}
	if err := services.Deliver(ctx, h.Notifier, direct); err != nil {
		zap.S().Warnf("slash command notification error: %v", err)
	}

	c.JSON(http.StatusOK, slack.Msg{ResponseType: slack.ResponseTypeInChannel, Text: strings.Join(lines, "\n")})
}

// readVerifiedBody はボディを読み、署名を検証してからボディを元に戻す
func (h *SlackHandler) readVerifiedBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		zap.S().Warnf("failed to read request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return nil, false
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	if h.SigningSecret == "" {
		return body, true
	}

	sv, err := slack.NewSecretsVerifier(c.Request.Header, h.SigningSecret)
	if err == nil {
		_, err = sv.Write(body)
	}
	if err == nil {
		err = sv.Ensure()
	}
	if err != nil {
		zap.S().Warnf("invalid slack signature: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid slack signature"})
		return nil, false
	}
	return body, true
}

func (h *SlackHandler) userName(ctx context.Context, userID string) string {
	if h.Users == nil {
		return userID
	}
	name, err := h.Users.UserName(ctx, userID)
	if err != nil || name == "" {
		zap.S().Warnf("user name lookup failed (user: %s): %v", userID, err)
		return userID
	}
	return name
}
