package services

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// 「a few seconds ago」「30 minutes ago」「an hour ago」のような表記にする
var ageMagnitudes = []humanize.RelTimeMagnitude{
	{D: 45 * time.Second, Format: "a few seconds %s", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "a minute %s", DivBy: time.Second},
	{D: 45 * time.Minute, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "an hour %s", DivBy: time.Minute},
	{D: 22 * time.Hour, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "a day %s", DivBy: time.Hour},
	{D: 26 * humanize.Day, Format: "%d days %s", DivBy: humanize.Day},
	{D: 2 * humanize.Month, Format: "a month %s", DivBy: humanize.Day},
	{D: humanize.Year, Format: "%d months %s", DivBy: humanize.Month},
	{D: 2 * humanize.Year, Format: "a year %s", DivBy: humanize.Day},
	{D: math.MaxInt64, Format: "%d years %s", DivBy: humanize.Year},
}

// TimeAgo は then から now までの経過時間を英語で返す
func TimeAgo(then, now time.Time) string {
	return humanize.CustomRelTime(then, now, "ago", "from now", ageMagnitudes)
}
