package services

import (
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
)

// :horse: や :+1: のような絵文字コード。空白や改行を含むものはただのコロンとみなす
var emojiCodeRegex = regexp.MustCompile(`:([a-zA-Z0-9_+\-]+):`)

// LooksLikeApproval はコメントが絵文字による承認に見えるかどうか
func LooksLikeApproval(text string) bool {
	return ContainsEmojiCode(text) || ContainsUnicodeEmoji(text)
}

// ContainsEmojiCode は :word: 形式の絵文字コードを含むかどうか
func ContainsEmojiCode(text string) bool {
	for _, m := range emojiCodeRegex.FindAllStringSubmatch(text, -1) {
		// 12:30:45 のような時刻は除外
		if strings.Trim(m[1], "0123456789") != "" {
			return true
		}
	}
	return false
}

// ContainsUnicodeEmoji はUnicodeの絵文字を含むかどうか。✓ や ❯ のような記号は絵文字ではない
func ContainsUnicodeEmoji(text string) bool {
	return gomoji.ContainsEmoji(text)
}
