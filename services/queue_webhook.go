package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"slack-code-review/models"
)

const (
	EventIssueComment      = "issue_comment"
	EventPullRequestReview = "pull_request_review"
	EventPullRequest       = "pull_request"
)

// roomUpdate は1つのルームに対する webhook の処理結果
type roomUpdate struct {
	room     string
	requests []models.ReviewRequest
	messages []models.Message
}

// reconcile は slug を持つ全ルームに apply を適用する
// ルーム同士は状態を共有しないので並行に処理し、各ルームの中はルームのロックで原子的に変更する
// 保存に失敗したルームがあってもエラーと一緒に保存できたルームの結果を返す
func (e *QueueEngine) reconcile(ctx context.Context, slug string, apply func(q *roomQueue, i int, u *roomUpdate) bool) ([]roomUpdate, error) {
	var (
		mu      sync.Mutex
		updates []roomUpdate
		g       errgroup.Group // 1ルームの失敗で他のルームの保存を止めない
	)

	for _, room := range e.Rooms() {
		g.Go(func() error {
			u := roomUpdate{room: room}
			found := false
			err := e.mutate(ctx, room, func(q *roomQueue) (bool, error) {
				i := indexOfSlug(q.requests, slug)
				if i < 0 {
					return false, nil
				}
				found = true
				return apply(q, i, &u), nil
			})
			if err != nil {
				return err
			}
			if found {
				mu.Lock()
				updates = append(updates, u)
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	sort.Slice(updates, func(i, j int) bool { return updates[i].room < updates[j].room })
	return updates, err
}

func (e *QueueEngine) approveAt(q *roomQueue, i int, approver string) bool {
	switch q.requests[i].Status {
	case models.StatusNew, models.StatusClaimed:
		q.requests[i].Transition(models.StatusApproved, approver, e.now())
		return true
	}
	return false
}

func webhookSlug(url string) (string, error) {
	slug, ok := URLToSlug(url)
	if !ok {
		return "", NewError(ErrorCodeInvalidInput, fmt.Sprintf("not a pull request url: %s", url))
	}
	return slug, nil
}

func notFoundOutcome(event, url string) error {
	return NewError(ErrorCodeNotFound, fmt.Sprintf("%s no code review found for %s", event, url))
}

func collect(updates []roomUpdate, summary string) Result {
	result := Result{Summary: summary}
	for _, u := range updates {
		result.Requests = append(result.Requests, u.requests...)
		result.Messages = append(result.Messages, u.messages...)
	}
	return result
}

// ReconcileComment はPRへのコメントが絵文字による承認なら、全ルームの該当レビュー依頼を approved にする
func (e *QueueEngine) ReconcileComment(ctx context.Context, url, body, author string) (Result, error) {
	slug, err := webhookSlug(url)
	if err != nil {
		return Result{}, err
	}

	approved := e.approves(body)
	updates, err := e.reconcile(ctx, slug, func(q *roomQueue, i int, u *roomUpdate) bool {
		if !approved || !e.approveAt(q, i, author) {
			u.requests = append(u.requests, q.requests[i])
			return false
		}
		req := q.requests[i]
		u.requests = append(u.requests, req)
		u.messages = append(u.messages,
			roomMessage(u.room, msgApprovedRoom(req, author)),
			directMessage(req.Submitter, msgApprovedDM(req.Submitter, author, url, body)),
		)
		return true
	})
	if err != nil {
		return collect(updates, ""), err
	}
	if len(updates) == 0 {
		return Result{}, notFoundOutcome(EventIssueComment, url)
	}

	if !approved {
		zap.S().Infof("comment did not approve: slug=%s, author=%s", slug, author)
		return collect(updates, fmt.Sprintf("%s did not yet approve %s", EventIssueComment, url)), nil
	}
	zap.S().Infof("code review approved by comment: slug=%s, author=%s, rooms=%d", slug, author, len(updates))
	return collect(updates, fmt.Sprintf("%s approved %s", EventIssueComment, url)), nil
}

// ReconcileReview はレビューの提出を反映する。approved なら承認、それ以外は提出者にDMで知らせるだけ
func (e *QueueEngine) ReconcileReview(ctx context.Context, url, body, state, reviewer string) (Result, error) {
	slug, err := webhookSlug(url)
	if err != nil {
		return Result{}, err
	}

	approved := strings.EqualFold(state, "approved")
	updates, err := e.reconcile(ctx, slug, func(q *roomQueue, i int, u *roomUpdate) bool {
		if !approved {
			req := q.requests[i]
			u.requests = append(u.requests, req)
			u.messages = append(u.messages, directMessage(req.Submitter, msgCommentedDM(req.Submitter, reviewer, url, body)))
			return false
		}

		changed := e.approveAt(q, i, reviewer)
		req := q.requests[i]
		u.requests = append(u.requests, req)
		if changed {
			u.messages = append(u.messages,
				roomMessage(u.room, msgApprovedRoom(req, reviewer)),
				directMessage(req.Submitter, msgApprovedDM(req.Submitter, reviewer, url, body)),
			)
		}
		return changed
	})
	if err != nil {
		return collect(updates, ""), err
	}
	if len(updates) == 0 {
		return Result{}, notFoundOutcome(EventPullRequestReview, url)
	}

	if !approved {
		zap.S().Infof("review did not approve: slug=%s, reviewer=%s, state=%s", slug, reviewer, state)
		return collect(updates, fmt.Sprintf("%s not yet approved %s", EventPullRequestReview, url)), nil
	}
	zap.S().Infof("code review approved by review: slug=%s, reviewer=%s, rooms=%d", slug, reviewer, len(updates))
	return collect(updates, fmt.Sprintf("%s approved %s", EventPullRequestReview, url)), nil
}

// ReconcileMergeClose はPRのマージ・クローズを反映する
// approved だけを merged / closed にし、new や claimed は状態を変えずに警告を出す
func (e *QueueEngine) ReconcileMergeClose(ctx context.Context, url string, merged bool) (Result, error) {
	slug, err := webhookSlug(url)
	if err != nil {
		return Result{}, err
	}

	final := models.StatusClosed
	if merged {
		final = models.StatusMerged
	}

	updates, err := e.reconcile(ctx, slug, func(q *roomQueue, i int, u *roomUpdate) bool {
		req := q.requests[i]
		switch req.Status {
		case models.StatusApproved:
			q.requests[i].Transition(final, req.Reviewer, e.now())
			u.requests = append(u.requests, q.requests[i])
			return true
		case models.StatusNew:
			text := msgClosedNew(req)
			if merged {
				text = msgMergedNew(req.Slug)
			}
			u.messages = append(u.messages, roomMessage(u.room, text))
		case models.StatusClaimed:
			text := msgClosedClaimed(req)
			if merged {
				text = msgMergedClaimed(req)
			}
			u.messages = append(u.messages, roomMessage(u.room, text))
		}
		u.requests = append(u.requests, req)
		return false
	})
	if err != nil {
		return collect(updates, ""), err
	}
	if len(updates) == 0 {
		return Result{}, notFoundOutcome(EventPullRequest, url)
	}

	zap.S().Infof("pull request %s: slug=%s, rooms=%d", final, slug, len(updates))
	return collect(updates, fmt.Sprintf("%s %s %s", EventPullRequest, final, url)), nil
}
