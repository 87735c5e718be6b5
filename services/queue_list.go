package services

import (
	"iter"
	"strings"

	"slack-code-review/models"
)

// ListByStatus はルームのレビュー依頼を古い順に1行ずつ返す。最初の行は見出し
// status は models.Statuses のいずれか、または "all"
// 呼び出した時点のコピーを使うので、何度でも同じ内容で繰り返せる
func (e *QueueEngine) ListByStatus(room, status string) (iter.Seq[string], error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		status = string(models.StatusNew)
	}

	keep := func(models.ReviewRequest) bool { return true }
	if status != models.StatusAll {
		s, ok := models.ParseStatus(status)
		if !ok {
			return nil, NewError(ErrorCodeInvalidInput, msgInvalidStatus(status))
		}
		keep = WithStatus(s)
	}

	var matched []models.ReviewRequest
	for _, req := range oldestFirst(e.Queue(room)) {
		if keep(req) {
			matched = append(matched, req)
		}
	}
	now := e.now()

	return func(yield func(string) bool) {
		if len(matched) == 0 {
			yield(msgListEmpty(status))
			return
		}
		if !yield(msgListHeader(status)) {
			return
		}
		for _, req := range matched {
			if !yield(msgListLine(req, TimeAgo(req.LastUpdated, now))) {
				return
			}
		}
	}, nil
}

// ListText は ListByStatus の各行を改行でつなげる
func (e *QueueEngine) ListText(room, status string) (string, error) {
	lines, err := e.ListByStatus(room, status)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for line := range lines {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	return b.String(), nil
}
