package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"slack-code-review/models"
)

// ClaimNext は一番古い new のレビュー依頼を user に割り当てる
func (e *QueueEngine) ClaimNext(ctx context.Context, room string, user models.User) (Result, error) {
	var claimed models.ReviewRequest
	err := e.mutate(ctx, room, func(q *roomQueue) (bool, error) {
		// キューは新しい順なので末尾から探す
		for i := len(q.requests) - 1; i >= 0; i-- {
			if q.requests[i].Status == models.StatusNew {
				claimed = e.claimAt(q, i, user)
				return true, nil
			}
		}
		return false, NewError(ErrorCodeNotFound, msgNothingToClaim())
	})
	if err != nil {
		return Result{}, err
	}

	e.recordClaim(ctx, claimed)
	return Result{
		Requests: []models.ReviewRequest{claimed},
		Messages: []models.Message{roomMessage(room, msgClaimed(user, claimed.Slug))},
	}, nil
}

// ClaimBySlugFragment は fragment に一致する new のレビュー依頼を1件だけ割り当てる
func (e *QueueEngine) ClaimBySlugFragment(ctx context.Context, room string, user models.User, fragment string) (Result, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return Result{}, NewError(ErrorCodeInvalidInput, msgBeMoreSpecific())
	}

	var claimed models.ReviewRequest
	err := e.mutate(ctx, room, func(q *roomQueue) (bool, error) {
		candidates := FindCandidates(q.requests, fragment, WithStatus(models.StatusNew))
		switch len(candidates) {
		case 0:
			// new 以外で1件だけ一致するなら、誰が持っているかを教える
			taken := FindCandidates(q.requests, fragment, nil)
			if len(taken) == 1 {
				return false, NewError(ErrorCodeNotFound, msgAlreadyTaken(taken[0]))
			}
			return false, NewError(ErrorCodeNotFound, msgNoNewMatch(fragment))
		case 1:
			claimed = e.claimAt(q, indexOfSlug(q.requests, candidates[0].Slug), user)
			return true, nil
		default:
			return false, NewError(ErrorCodeAmbiguous, msgAmbiguous(oldestFirst(candidates)))
		}
	})
	if err != nil {
		return Result{}, err
	}

	e.recordClaim(ctx, claimed)
	return Result{
		Requests: []models.ReviewRequest{claimed},
		Messages: []models.Message{roomMessage(room, msgClaimed(user, claimed.Slug))},
	}, nil
}

// ClaimAll はルームの new をすべて古い順に割り当てる
func (e *QueueEngine) ClaimAll(ctx context.Context, room string, user models.User) (Result, error) {
	var claimed []models.ReviewRequest
	err := e.mutate(ctx, room, func(q *roomQueue) (bool, error) {
		for i := len(q.requests) - 1; i >= 0; i-- {
			if q.requests[i].Status == models.StatusNew {
				claimed = append(claimed, e.claimAt(q, i, user))
			}
		}
		if len(claimed) == 0 {
			return false, NewError(ErrorCodeNotFound, msgNothingToClaim())
		}
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Requests: claimed,
		Messages: []models.Message{roomMessage(room, msgClaimAll())},
	}
	for _, req := range claimed {
		e.recordClaim(ctx, req)
		result.Messages = append(result.Messages, roomMessage(room, msgClaimed(user, req.Slug)))
	}
	return result, nil
}

// Unclaim は claimed のレビュー依頼を new に戻す。レビュワーのスコアは取り消す
func (e *QueueEngine) Unclaim(ctx context.Context, room, fragment string) (Result, error) {
	req, err := e.reset(ctx, room, fragment)
	if err != nil {
		return Result{}, err
	}

	if err := e.karma.RevokeClaim(ctx, req.before.Reviewer, req.before.Submitter.Name); err != nil {
		zap.S().Warnf("karma revoke error (slug: %s): %v", req.after.Slug, err)
	}
	return Result{
		Requests: []models.ReviewRequest{req.after},
		Messages: []models.Message{roomMessage(room, msgUnclaimed(req.after.Slug))},
	}, nil
}

// Redo は Unclaim と同じく new に戻すが、スコアは変えない
func (e *QueueEngine) Redo(ctx context.Context, room, fragment string) (Result, error) {
	req, err := e.reset(ctx, room, fragment)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Requests: []models.ReviewRequest{req.after},
		Messages: []models.Message{roomMessage(room, msgRedo(req.after.Slug))},
	}, nil
}

type resetResult struct {
	before models.ReviewRequest
	after  models.ReviewRequest
}

func (e *QueueEngine) reset(ctx context.Context, room, fragment string) (resetResult, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return resetResult{}, NewError(ErrorCodeInvalidInput, msgBeMoreSpecific())
	}

	var res resetResult
	err := e.mutate(ctx, room, func(q *roomQueue) (bool, error) {
		candidates := FindCandidates(q.requests, fragment, WithStatus(models.StatusClaimed))
		switch len(candidates) {
		case 0:
			return false, NewError(ErrorCodeNotFound, msgNoMatch(fragment))
		case 1:
		default:
			return false, NewError(ErrorCodeAmbiguous, msgAmbiguous(oldestFirst(candidates)))
		}

		i := indexOfSlug(q.requests, candidates[0].Slug)
		res.before = q.requests[i]
		q.requests[i].Transition(models.StatusNew, "", e.now())
		res.after = q.requests[i]
		return true, nil
	})
	if err != nil {
		return resetResult{}, err
	}

	zap.S().Infof("code review reset: room=%s, slug=%s, reviewer=%s", room, res.after.Slug, res.before.Reviewer)
	return res, nil
}

// Ignore はレビュー依頼をキューから削除する
// fragment が空なら一番新しいものを、そうでなければ一致するものをすべて削除する
func (e *QueueEngine) Ignore(ctx context.Context, room string, user models.User, fragment string) (Result, error) {
	fragment = strings.TrimSpace(fragment)

	var removed []models.ReviewRequest
	err := e.mutate(ctx, room, func(q *roomQueue) (bool, error) {
		if fragment == "" {
			if len(q.requests) == 0 {
				return false, NewError(ErrorCodeNotFound, msgNothingToIgnore())
			}
			removed = append(removed, q.requests[0])
			q.requests = q.requests[1:]
			return true, nil
		}

		kept := q.requests[:0:0]
		for _, req := range q.requests {
			if strings.Contains(req.Slug, fragment) {
				removed = append(removed, req)
				continue
			}
			kept = append(kept, req)
		}
		if len(removed) == 0 {
			return false, NewError(ErrorCodeNotFound, msgNoMatch(fragment))
		}
		q.requests = kept
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{Requests: removed}
	for _, req := range removed {
		zap.S().Infof("code review ignored: room=%s, slug=%s, user=%s", room, req.Slug, user.Name)
		result.Messages = append(result.Messages, roomMessage(room, msgIgnored(req.Slug)))
	}
	return result, nil
}

func (e *QueueEngine) claimAt(q *roomQueue, i int, user models.User) models.ReviewRequest {
	q.requests[i].Transition(models.StatusClaimed, user.Name, e.now())
	return q.requests[i]
}

// recordClaim は保存に成功した後に呼ぶ。スコアの失敗ではclaimを取り消さない
func (e *QueueEngine) recordClaim(ctx context.Context, req models.ReviewRequest) {
	zap.S().Infof("code review claimed: room=%s, slug=%s, reviewer=%s", req.Room, req.Slug, req.Reviewer)
	if err := e.karma.RecordClaim(ctx, req.Reviewer, req.Submitter.Name); err != nil {
		zap.S().Warnf("karma record error (slug: %s): %v", req.Slug, err)
	}
}

// oldestFirst は新しい順のリストを古い順にしたコピーを返す
func oldestFirst(queue []models.ReviewRequest) []models.ReviewRequest {
	out := make([]models.ReviewRequest, len(queue))
	for i, req := range queue {
		out[len(queue)-1-i] = req
	}
	return out
}
