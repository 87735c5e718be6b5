package models

// Message はアダプタ側で送信するメッセージ。UserID があればDMで送る
type Message struct {
	Channel string
	UserID  string
	Text    string
}

// IsDirect はDMかどうか
func (m Message) IsDirect() bool {
	return m.UserID != ""
}
