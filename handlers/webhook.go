package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v71/github"
	"go.uber.org/zap"

	"slack-code-review/services"
)

func (h *GitHubHandler) handleIssueCommentEvent(c *gin.Context, e *github.IssueCommentEvent) {
	url := e.GetIssue().GetHTMLURL()

	if !h.EmojiApprove {
		c.String(http.StatusOK, "%s approval by emoji is disabled", services.EventIssueComment)
		return
	}
	if e.GetAction() == "deleted" {
		c.String(http.StatusOK, "%s deleted ignored", services.EventIssueComment)
		return
	}
	// 普通のissueへのコメントも届く
	if _, ok := services.URLToSlug(url); !ok {
		c.String(http.StatusOK, "%s not a pull request %s", services.EventIssueComment, url)
		return
	}

	comment := e.GetComment()
	res, err := h.Engine.ReconcileComment(c.Request.Context(), url, comment.GetBody(), comment.GetUser().GetLogin())
	h.respond(c, res, err)
}

func (h *GitHubHandler) handlePullRequestReviewEvent(c *gin.Context, e *github.PullRequestReviewEvent) {
	if action := e.GetAction(); action != "" && action != "submitted" {
		c.String(http.StatusOK, "%s %s ignored", services.EventPullRequestReview, action)
		return
	}

	review := e.GetReview()
	res, err := h.Engine.ReconcileReview(c.Request.Context(),
		e.GetPullRequest().GetHTMLURL(),
		review.GetBody(),
		review.GetState(),
		review.GetUser().GetLogin(),
	)
	h.respond(c, res, err)
}

func (h *GitHubHandler) handlePullRequestEvent(c *gin.Context, e *github.PullRequestEvent) {
	if e.GetAction() != "closed" {
		c.String(http.StatusOK, "%s %s ignored", services.EventPullRequest, e.GetAction())
		return
	}

	pr := e.GetPullRequest()
	res, err := h.Engine.ReconcileMergeClose(c.Request.Context(), pr.GetHTMLURL(), pr.GetMerged())
	h.respond(c, res, err)
}

// respond はキューに無いPRなら 200 で理由を返す。保存に失敗したら 500
func (h *GitHubHandler) respond(c *gin.Context, res services.Result, err error) {
	if err != nil {
		switch services.CodeOf(err) {
		case services.ErrorCodeNotFound:
			c.String(http.StatusOK, "%s", services.ReplyText(err))
		case services.ErrorCodeInvalidInput:
			c.String(http.StatusBadRequest, "%s", services.ReplyText(err))
		default:
			zap.S().Errorf("webhook handling error: %v", err)
			// 保存できたルームの変更は残っているので通知は送る
			if err := services.Deliver(c.Request.Context(), h.Notifier, res.Messages); err != nil {
				zap.S().Warnf("webhook notification error: %v", err)
			}
			c.String(http.StatusInternalServerError, "%s", services.ReplyText(err))
		}
		return
	}

	if err := services.Deliver(c.Request.Context(), h.Notifier, res.Messages); err != nil {
		zap.S().Warnf("webhook notification error (%s): %v", res.Summary, err)
	}
	c.String(http.StatusOK, "%s", res.Summary)
}
