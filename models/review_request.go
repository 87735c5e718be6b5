package models

import "time"

// Status はレビュー依頼の状態
type Status string

const (
	StatusNew      Status = "new"
	StatusClaimed  Status = "claimed"
	StatusApproved Status = "approved"
	StatusClosed   Status = "closed"
	StatusMerged   Status = "merged"
)

// StatusAll は一覧表示でステータスを絞り込まないときに使う
const StatusAll = "all"

// Statuses は一覧表示で指定できるステータス
var Statuses = []Status{StatusNew, StatusClaimed, StatusApproved, StatusClosed, StatusMerged}

// ParseStatus は文字列をステータスに変換する
func ParseStatus(s string) (Status, bool) {
	for _, status := range Statuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

// Verb は一覧表示で経過時間の前に付ける動詞
func (s Status) Verb() string {
	if s == StatusNew {
		return "added"
	}
	return string(s)
}

// User はチャットのユーザー（SlackのユーザーIDと表示名、発言したチャンネル）
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Room string `json:"room"`
}

// ReviewRequest は1つのルームでレビュー待ちになっているPR
type ReviewRequest struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"` // "<repo>/<PR番号>"
	URL         string    `json:"url"`  // 最初に投稿されたURL（/files 付きもそのまま保持）
	Submitter   User      `json:"user"`
	Reviewer    string    `json:"reviewer,omitempty"` // claimed / approved のときだけ設定される
	Status      Status    `json:"status"`
	Room        string    `json:"room"`
	LastUpdated time.Time `json:"last_updated"`
}

// HasReviewer はレビュワーを保持してよい状態かどうか
func (r ReviewRequest) HasReviewer() bool {
	return r.Status == StatusClaimed || r.Status == StatusApproved
}

// Transition は状態を変えて更新時刻を進める
// レビュワーを持たない状態に移るときは reviewer を無視して空にする
func (r *ReviewRequest) Transition(status Status, reviewer string, at time.Time) {
	r.Status = status
	r.Reviewer = ""
	if r.HasReviewer() {
		r.Reviewer = reviewer
	}
	r.LastUpdated = at
}
