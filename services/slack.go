package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"slack-code-review/models"
)

// Notifier はチャンネルへの投稿とDMを送る
type Notifier interface {
	PostMessage(ctx context.Context, channel, text string) error
	DirectMessage(ctx context.Context, userID, text string) error
}

// UserDirectory はSlackのユーザーIDから表示名を引く
type UserDirectory interface {
	UserName(ctx context.Context, userID string) (string, error)
}

// SlackNotifier は slack-go のクライアントを使う Notifier
type SlackNotifier struct {
	client *slack.Client
}

// NewSlackNotifier は apiURL が空ならSlack本番のAPIを使う
func NewSlackNotifier(token, apiURL string) *SlackNotifier {
	opts := []slack.Option{}
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &SlackNotifier{client: slack.New(token, opts...)}
}

func (n *SlackNotifier) PostMessage(ctx context.Context, channel, text string) error {
	_, _, err := n.client.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post message to %s: %w", channel, err)
	}
	return nil
}

func (n *SlackNotifier) DirectMessage(ctx context.Context, userID, text string) error {
	channel, _, _, err := n.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return fmt.Errorf("failed to open conversation with %s: %w", userID, err)
	}
	return n.PostMessage(ctx, channel.ID, text)
}

// UserName は表示名を返す。表示名が未設定ならユーザー名
func (n *SlackNotifier) UserName(ctx context.Context, userID string) (string, error) {
	user, err := n.client.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user info for %s: %w", userID, err)
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName, nil
	}
	return user.Name, nil
}

// LogNotifier はトークンが無いときに使う。送る代わりにログに出す
type LogNotifier struct{}

func (LogNotifier) PostMessage(_ context.Context, channel, text string) error {
	zap.S().Infof("slack post skipped (no token): channel=%s, text=%q", channel, text)
	return nil
}

func (LogNotifier) DirectMessage(_ context.Context, userID, text string) error {
	zap.S().Infof("slack dm skipped (no token): user=%s, text=%q", userID, text)
	return nil
}

// Deliver はエンジンが返したメッセージを順番に送る。失敗しても残りは送る
func Deliver(ctx context.Context, n Notifier, msgs []models.Message) error {
	var errs []error
	for _, msg := range msgs {
		var err error
		if msg.IsDirect() {
			err = n.DirectMessage(ctx, msg.UserID, msg.Text)
		} else {
			err = n.PostMessage(ctx, msg.Channel, msg.Text)
		}
		if err != nil {
			zap.S().Errorf("slack delivery error: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
