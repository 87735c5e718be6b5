package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v71/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-code-review/models"
	"slack-code-review/services"
)

// recordingNotifier は送信したメッセージを記録する
type recordingNotifier struct {
	mu     sync.Mutex
	posted []models.Message
	err    error
}

func (n *recordingNotifier) PostMessage(_ context.Context, channel, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.posted = append(n.posted, models.Message{Channel: channel, Text: text})
	return n.err
}

func (n *recordingNotifier) DirectMessage(_ context.Context, userID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.posted = append(n.posted, models.Message{UserID: userID, Text: text})
	return n.err
}

func (n *recordingNotifier) messages() []models.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Message(nil), n.posted...)
}

type webhookFixture struct {
	engine   *services.QueueEngine
	notifier *recordingNotifier
	router   *gin.Engine
}

func setupWebhook(t *testing.T, secret string, emojiApprove bool) webhookFixture {
	t.Helper()
	return setupWebhookWithStore(t, services.NewMemoryStore(), secret, emojiApprove)
}

func setupWebhookWithStore(t *testing.T, store services.Store, secret string, emojiApprove bool) webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine, err := services.NewQueueEngine(context.Background(), store, nil)
	require.NoError(t, err)
	notifier := &recordingNotifier{}

	router := gin.New()
	router.POST("/webhook", NewGitHubHandler(engine, notifier, secret, emojiApprove).HandleWebhook)
	return webhookFixture{engine: engine, notifier: notifier, router: router}
}

func (f webhookFixture) submit(t *testing.T, user models.User, url string) {
	t.Helper()
	_, err := f.engine.Submit(context.Background(), user, url)
	require.NoError(t, err)
}

func (f webhookFixture) post(t *testing.T, event string, payload any, secret string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func issueCommentPayload(url, body, login string) github.IssueCommentEvent {
	return github.IssueCommentEvent{
		Action: github.Ptr("created"),
		Issue:  &github.Issue{HTMLURL: github.Ptr(url)},
		Comment: &github.IssueComment{
			Body: github.Ptr(body),
			User: &github.User{Login: github.Ptr(login)},
		},
	}
}

func reviewPayload(url, state, body, login string) github.PullRequestReviewEvent {
	return github.PullRequestReviewEvent{
		Action:      github.Ptr("submitted"),
		PullRequest: &github.PullRequest{HTMLURL: github.Ptr(url)},
		Review: &github.PullRequestReview{
			State: github.Ptr(state),
			Body:  github.Ptr(body),
			User:  &github.User{Login: github.Ptr(login)},
		},
	}
}

func pullRequestPayload(action, url string, merged bool) github.PullRequestEvent {
	return github.PullRequestEvent{
		Action: github.Ptr(action),
		PullRequest: &github.PullRequest{
			HTMLURL: github.Ptr(url),
			Merged:  github.Ptr(merged),
		},
	}
}

func TestHandleWebhook_InvalidEvent(t *testing.T) {
	f := setupWebhook(t, "", true)

	w := f.post(t, "push", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid x-github-event push", w.Body.String())
}

func TestHandleWebhook_Signature(t *testing.T) {
	f := setupWebhook(t, "s3cret", true)
	f.submit(t, alice, apiURL)
	payload := issueCommentPayload(apiURL, ":+1:", "gh-bob")

	w := f.post(t, services.EventIssueComment, payload, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.StatusNew, f.engine.Queue("C1")[0].Status)

	w = f.post(t, services.EventIssueComment, payload, "s3cret")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "issue_comment approved "+apiURL, w.Body.String())
}

func TestHandleWebhook_IssueComment(t *testing.T) {
	f := setupWebhook(t, "", true)
	f.submit(t, alice, apiURL)
	f.submit(t, carol, apiURL)

	w := f.post(t, services.EventIssueComment, issueCommentPayload(apiURL, "lgtm :shipit:", "gh-bob"), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "issue_comment approved "+apiURL, w.Body.String())

	for _, room := range []string{"C1", "C2"} {
		req := f.engine.Queue(room)[0]
		assert.Equal(t, models.StatusApproved, req.Status, room)
		assert.Equal(t, "gh-bob", req.Reviewer, room)
	}
	assert.Equal(t, []models.Message{
		{Channel: "C1", Text: "*api/12* has been approved by gh-bob. :white_check_mark:"},
		{UserID: "U1", Text: "hey @alice! gh-bob approved " + apiURL + ":\nlgtm :shipit:"},
		{Channel: "C2", Text: "*api/12* has been approved by gh-bob. :white_check_mark:"},
		{UserID: "U3", Text: "hey @carol! gh-bob approved " + apiURL + ":\nlgtm :shipit:"},
	}, f.notifier.messages())
}

func TestHandleWebhook_IssueCommentIgnored(t *testing.T) {
	tests := []struct {
		name         string
		emojiApprove bool
		payload      github.IssueCommentEvent
		want         string
	}{
		{
			name:    "承認ではない",
			payload: issueCommentPayload(apiURL, "needs more tests", "gh-bob"),
			want:    "issue_comment did not yet approve " + apiURL,
		},
		{
			name:    "キューに無い",
			payload: issueCommentPayload(webURL, ":+1:", "gh-bob"),
			want:    "issue_comment no code review found for " + webURL,
		},
		{
			name:    "issueへのコメント",
			payload: issueCommentPayload("https://github.com/org/api/issues/7", ":+1:", "gh-bob"),
			want:    "issue_comment not a pull request https://github.com/org/api/issues/7",
		},
		{
			name:    "絵文字での承認が無効",
			payload: issueCommentPayload(apiURL, ":+1:", "gh-bob"),
			want:    "issue_comment approval by emoji is disabled",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupWebhook(t, "", i != len(tests)-1)
			f.submit(t, alice, apiURL)

			w := f.post(t, services.EventIssueComment, tt.payload, "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Body.String())
			assert.Equal(t, models.StatusNew, f.engine.Queue("C1")[0].Status)
			assert.Empty(t, f.notifier.messages())
		})
	}
}

func TestHandleWebhook_Review(t *testing.T) {
	tests := []struct {
		name       string
		state      string
		wantBody   string
		wantStatus models.Status
		wantMsgs   []models.Message
	}{
		{
			name:       "approved",
			state:      "approved",
			wantBody:   "pull_request_review approved " + apiURL,
			wantStatus: models.StatusApproved,
			wantMsgs: []models.Message{
				{Channel: "C1", Text: "*api/12* has been approved by gh-bob. :white_check_mark:"},
				{UserID: "U1", Text: "hey @alice! gh-bob approved " + apiURL + ":\nship it"},
			},
		},
		{
			name:       "changes_requested",
			state:      "changes_requested",
			wantBody:   "pull_request_review not yet approved " + apiURL,
			wantStatus: models.StatusNew,
			wantMsgs: []models.Message{
				{UserID: "U1", Text: "hey @alice, gh-bob commented on " + apiURL + ":\nship it"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupWebhook(t, "", true)
			f.submit(t, alice, apiURL)

			w := f.post(t, services.EventPullRequestReview, reviewPayload(apiURL, tt.state, "ship it", "gh-bob"), "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
			assert.Equal(t, tt.wantStatus, f.engine.Queue("C1")[0].Status)
			assert.Equal(t, tt.wantMsgs, f.notifier.messages())
		})
	}
}

func TestHandleWebhook_ReviewDismissedIgnored(t *testing.T) {
	f := setupWebhook(t, "", true)
	f.submit(t, alice, apiURL)

	payload := reviewPayload(apiURL, "approved", "", "gh-bob")
	payload.Action = github.Ptr("dismissed")
	w := f.post(t, services.EventPullRequestReview, payload, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pull_request_review dismissed ignored", w.Body.String())
	assert.Equal(t, models.StatusNew, f.engine.Queue("C1")[0].Status)
}

func TestHandleWebhook_PullRequestClosed(t *testing.T) {
	f := setupWebhook(t, "", true)
	f.submit(t, alice, apiURL)
	f.submit(t, alice, webURL)
	_, err := f.engine.ReconcileReview(context.Background(), apiURL, "", "approved", "gh-bob")
	require.NoError(t, err)

	w := f.post(t, services.EventPullRequest, pullRequestPayload("closed", apiURL, true), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pull_request merged "+apiURL, w.Body.String())

	// new のまま閉じられたものは警告だけ
	w = f.post(t, services.EventPullRequest, pullRequestPayload("closed", webURL, false), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pull_request closed "+webURL, w.Body.String())

	queue := f.engine.Queue("C1")
	require.Len(t, queue, 2)
	assert.Equal(t, models.StatusNew, queue[0].Status)
	assert.Equal(t, models.StatusMerged, queue[1].Status)
	assert.Empty(t, queue[1].Reviewer)

	msgs := f.notifier.messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, models.Message{
		Channel: "C1",
		Text:    "Hey @alice, looks like *web/3* was closed on GitHub. Say `ignore web/3` to remove it from the queue.",
	}, msgs[len(msgs)-1])
}

func TestHandleWebhook_PullRequestOtherActions(t *testing.T) {
	f := setupWebhook(t, "", true)
	f.submit(t, alice, apiURL)

	w := f.post(t, services.EventPullRequest, pullRequestPayload("opened", apiURL, false), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pull_request opened ignored", w.Body.String())
}

func TestHandleWebhook_NotificationFailure(t *testing.T) {
	f := setupWebhook(t, "", true)
	f.notifier.err = errors.New("slack is down")
	f.submit(t, alice, apiURL)

	// 通知に失敗してもキューの変更は確定している
	w := f.post(t, services.EventIssueComment, issueCommentPayload(apiURL, ":+1:", "gh-bob"), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusApproved, f.engine.Queue("C1")[0].Status)
}

// approvalRejectingStore は room のレビュー依頼が approved になる保存だけ失敗させる
type approvalRejectingStore struct {
	*services.MemoryStore
	room string
}

func (s approvalRejectingStore) Save(ctx context.Context, snapshot services.Snapshot) error {
	for _, req := range snapshot[s.room] {
		if req.Status == models.StatusApproved {
			return errors.New("disk full")
		}
	}
	return s.MemoryStore.Save(ctx, snapshot)
}

func TestHandleWebhook_PartialSaveFailure(t *testing.T) {
	f := setupWebhookWithStore(t, approvalRejectingStore{MemoryStore: services.NewMemoryStore(), room: "C2"}, "", true)
	f.submit(t, alice, apiURL)
	f.submit(t, carol, apiURL)

	w := f.post(t, services.EventIssueComment, issueCommentPayload(apiURL, ":+1:", "gh-bob"), "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// C1 は保存できたので通知も届く
	assert.Equal(t, models.StatusApproved, f.engine.Queue("C1")[0].Status)
	assert.Equal(t, models.StatusNew, f.engine.Queue("C2")[0].Status)
	assert.Equal(t, []models.Message{
		{Channel: "C1", Text: "*api/12* has been approved by gh-bob. :white_check_mark:"},
		{UserID: "U1", Text: "hey @alice! gh-bob approved " + apiURL + ":\n:+1:"},
	}, f.notifier.messages())
}
