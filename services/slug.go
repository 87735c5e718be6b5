package services

import (
	"fmt"
	"regexp"
	"strings"

	"slack-code-review/models"
)

// https://github.com/owner/repo/pull/123 と .../pull/123/files を想定
var prURLRegex = regexp.MustCompile(`https?://(?:www\.)?github\.com/([^/\s<>|]+)/([^/\s<>|]+)/pull/(\d+)(/files)?`)

// URLToSlug はPRのURLを "repo/123" 形式のslugに変換する
func URLToSlug(url string) (string, bool) {
	url = strings.TrimSpace(url)
	matches := prURLRegex.FindStringSubmatch(url)
	if matches == nil || !strings.HasPrefix(url, matches[0]) {
		return "", false
	}

	// 番号の後ろに続くのは区切り文字だけ許可する (/pull/12abc は不正)
	rest := strings.TrimPrefix(url, matches[0])
	if rest != "" && !strings.ContainsAny(rest[:1], "/#?") {
		return "", false
	}
	return matchesToSlug(matches), true
}

// ParsePullRequestURL はテキスト中の最初のPR URLを探し、URLとslugを返す
// Slackのリンク表記 <https://...|text> にも対応する
func ParsePullRequestURL(text string) (string, string, bool) {
	matches := prURLRegex.FindStringSubmatch(text)
	if matches == nil {
		return "", "", false
	}
	return matches[0], matchesToSlug(matches), true
}

func matchesToSlug(matches []string) string {
	return fmt.Sprintf("%s/%s", matches[2], matches[3])
}

// FindCandidates はslugに fragment を含むレビュー依頼をキューの順番のまま返す
// keep が nil でなければ条件に合うものだけを対象にする
func FindCandidates(queue []models.ReviewRequest, fragment string, keep func(models.ReviewRequest) bool) []models.ReviewRequest {
	var candidates []models.ReviewRequest
	for _, req := range queue {
		if keep != nil && !keep(req) {
			continue
		}
		if strings.Contains(req.Slug, fragment) {
			candidates = append(candidates, req)
		}
	}
	return candidates
}

// WithStatus は FindCandidates 用のステータス条件
func WithStatus(statuses ...models.Status) func(models.ReviewRequest) bool {
	return func(req models.ReviewRequest) bool {
		for _, s := range statuses {
			if req.Status == s {
				return true
			}
		}
		return false
	}
}
