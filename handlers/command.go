package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"slack-code-review/models"
	"slack-code-review/services"
)

// チャットのコマンド。ボットへのメンションは先に取り除く
var (
	claimRe     = regexp.MustCompile(`(?i)^on\s+(\S+)\s*$`)
	unclaimRe   = regexp.MustCompile(`(?i)^(?:unclaim|reset)(?:\s+(\S+))?\s*$`)
	redoRe      = regexp.MustCompile(`(?i)^redo(?:\s+(\S+))?\s*$`)
	ignoreRe    = regexp.MustCompile(`(?i)^ignore(?:\s+(\S+))?\s*$`)
	listRe      = regexp.MustCompile(`(?i)^list(?:\s+(\S+))?\s+crs?\s*$`)
	allScoresRe = regexp.MustCompile(`(?i)^list all cr scores\s*$`)
	myScoreRe   = regexp.MustCompile(`(?i)^what(?:'s| is) my cr score\??\s*$`)
	userScoreRe = regexp.MustCompile(`(?i)^what(?:'s| is) (\S+?)(?:'s)? cr score\??\s*$`)
	rankingsRe  = regexp.MustCompile(`(?i)^what are the cr rankings\??\s*$`)
	helpRe      = regexp.MustCompile(`(?i)^help crs?\s*$`)
)

const helpText = "*Code review queue*\n" +
	"• paste a GitHub PR link - add it to this room's queue\n" +
	"• `on it` - claim the oldest new PR\n" +
	"• `on <repo/number>` - claim a specific PR\n" +
	"• `on *` - claim every new PR\n" +
	"• `unclaim <repo/number>` / `reset <repo/number>` - put a claimed PR back\n" +
	"• `redo <repo/number>` - release your claim without losing karma\n" +
	"• `ignore [<repo/number>]` - remove the newest PR, or every PR matching\n" +
	"• `list [new|claimed|approved|closed|merged|all] crs` - list PRs in this room\n" +
	"• `list all cr scores` / `what is my cr score` / `what is <name>'s cr score` / `what are the cr rankings`"

// CommandRouter はチャットの発言をキュー操作に振り分ける
type CommandRouter struct {
	Engine *services.QueueEngine
	Karma  *services.Karma // nil ならスコアのコマンドは無視する

	mention *regexp.Regexp
}

func NewCommandRouter(engine *services.QueueEngine, karma *services.Karma, botName, botUserID string) *CommandRouter {
	names := []string{"@?" + regexp.QuoteMeta(botName)}
	if botUserID != "" {
		names = append(names, "<@"+regexp.QuoteMeta(botUserID)+">")
	}
	return &CommandRouter{
		Engine:  engine,
		Karma:   karma,
		mention: regexp.MustCompile(`(?i)^(?:` + strings.Join(names, "|") + `)[:,]?\s+`),
	}
}

// Dispatch は発言を処理して、送るべきメッセージを返す。コマンドでなければ false
func (r *CommandRouter) Dispatch(ctx context.Context, user models.User, text string) ([]models.Message, bool) {
	text = r.mention.ReplaceAllString(strings.TrimSpace(text), "")

	switch {
	case helpRe.MatchString(text):
		return reply(user, helpText), true

	case claimRe.MatchString(text):
		target := claimRe.FindStringSubmatch(text)[1]
		switch strings.ToLower(target) {
		case "it":
			return r.run(user, "claim next", func() (services.Result, error) {
				return r.Engine.ClaimNext(ctx, user.Room, user)
			})
		case "*":
			return r.run(user, "claim all", func() (services.Result, error) {
				return r.Engine.ClaimAll(ctx, user.Room, user)
			})
		default:
			return r.run(user, "claim "+target, func() (services.Result, error) {
				return r.Engine.ClaimBySlugFragment(ctx, user.Room, user, target)
			})
		}

	case unclaimRe.MatchString(text):
		fragment := unclaimRe.FindStringSubmatch(text)[1]
		return r.run(user, "unclaim "+fragment, func() (services.Result, error) {
			return r.Engine.Unclaim(ctx, user.Room, fragment)
		})

	case redoRe.MatchString(text):
		fragment := redoRe.FindStringSubmatch(text)[1]
		return r.run(user, "redo "+fragment, func() (services.Result, error) {
			return r.Engine.Redo(ctx, user.Room, fragment)
		})

	case ignoreRe.MatchString(text):
		fragment := ignoreRe.FindStringSubmatch(text)[1]
		return r.run(user, "ignore "+fragment, func() (services.Result, error) {
			return r.Engine.Ignore(ctx, user.Room, user, fragment)
		})

	case allScoresRe.MatchString(text):
		return r.karmaReply(user, func() (string, error) { return r.Karma.ScoresText(ctx) })

	case listRe.MatchString(text):
		status := listRe.FindStringSubmatch(text)[1]
		list, err := r.Engine.ListText(user.Room, status)
		if err != nil {
			return reply(user, services.ReplyText(err)), true
		}
		return reply(user, list), true

	case myScoreRe.MatchString(text):
		return r.karmaReply(user, func() (string, error) { return r.scoreText(ctx, user.Name) })

	case userScoreRe.MatchString(text):
		name := strings.TrimPrefix(userScoreRe.FindStringSubmatch(text)[1], "@")
		return r.karmaReply(user, func() (string, error) { return r.scoreText(ctx, name) })

	case rankingsRe.MatchString(text):
		return r.karmaReply(user, func() (string, error) { return r.Karma.Leaderboard(ctx) })
	}

	// SlackはURLを <https://...> や <https://...|label> で囲むが、URLの部分だけを拾う
	if url, _, ok := services.ParsePullRequestURL(text); ok {
		return r.run(user, "submit "+url, func() (services.Result, error) {
			return r.Engine.Submit(ctx, user, url)
		})
	}
	return nil, false
}

func (r *CommandRouter) run(user models.User, command string, op func() (services.Result, error)) ([]models.Message, bool) {
	res, err := op()
	if err != nil {
		if services.CodeOf(err) == services.ErrorCodePersistenceFailure {
			zap.S().Errorf("command failed: room=%s, user=%s, command=%s: %v", user.Room, user.Name, command, err)
		} else {
			zap.S().Infof("command rejected: room=%s, user=%s, command=%s: %v", user.Room, user.Name, command, err)
		}
		return reply(user, services.ReplyText(err)), true
	}
	return res.Messages, true
}

func (r *CommandRouter) karmaReply(user models.User, fn func() (string, error)) ([]models.Message, bool) {
	if r.Karma == nil {
		return nil, false
	}
	text, err := fn()
	if err != nil {
		zap.S().Errorf("karma lookup error: %v", err)
		return reply(user, "Sorry, I couldn't look up code review scores right now."), true
	}
	return reply(user, text), true
}

func (r *CommandRouter) scoreText(ctx context.Context, name string) (string, error) {
	score, err := r.Karma.ScoresFor(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to get score for %s: %w", name, err)
	}
	return services.FormatScore(score), nil
}

func reply(user models.User, text string) []models.Message {
	return []models.Message{{Channel: user.Room, Text: text}}
}
