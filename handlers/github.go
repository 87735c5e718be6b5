package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v71/github"
	"go.uber.org/zap"

	"slack-code-review/services"
)

// 受け付ける X-GitHub-Event
var acceptedEvents = map[string]bool{
	services.EventIssueComment:      true,
	services.EventPullRequestReview: true,
	services.EventPullRequest:       true,
}

type GitHubHandler struct {
	Engine       *services.QueueEngine
	Notifier     services.Notifier
	Secret       string // 空なら署名を検証しない
	EmojiApprove bool   // false なら issue_comment では承認しない
}

func NewGitHubHandler(engine *services.QueueEngine, notifier services.Notifier, secret string, emojiApprove bool) *GitHubHandler {
	return &GitHubHandler{
		Engine:       engine,
		Notifier:     notifier,
		Secret:       secret,
		EmojiApprove: emojiApprove,
	}
}

func (h *GitHubHandler) HandleWebhook(c *gin.Context) {
	eventType := github.WebHookType(c.Request)
	if !acceptedEvents[eventType] {
		zap.S().Infof("invalid github event: %q", eventType)
		c.String(http.StatusBadRequest, "invalid x-github-event %s", eventType)
		return
	}

	// githubのwebhookを受け取り中身をvalidateしたのち、中身を取り出す
	payload, err := github.ValidatePayload(c.Request, []byte(h.Secret))
	if err != nil {
		zap.S().Warnf("invalid webhook payload: %v", err)
		c.String(http.StatusUnauthorized, "invalid payload")
		return
	}

	// X-GitHub-Event の種類に応じた構造体に格納する
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		zap.S().Warnf("cannot parse webhook: %v", err)
		c.String(http.StatusBadRequest, "cannot parse webhook")
		return
	}

	switch e := event.(type) {
	case *github.IssueCommentEvent:
		h.handleIssueCommentEvent(c, e)
	case *github.PullRequestReviewEvent:
		h.handlePullRequestReviewEvent(c, e)
	case *github.PullRequestEvent:
		h.handlePullRequestEvent(c, e)
	default:
		c.String(http.StatusBadRequest, "invalid x-github-event %s", eventType)
	}
}
