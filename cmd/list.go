package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"slack-code-review/models"
	"slack-code-review/services"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the code review queues stored in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		room, _ := cmd.Flags().GetString("room")
		status, _ := cmd.Flags().GetString("status")
		return listRun(cmd.Context(), cmd.OutOrStdout(), room, status)
	},
}

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Show code review karma scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		return scoresRun(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	listCmd.Flags().String("room", "", "only show this room (Slack channel ID)")
	listCmd.Flags().String("status", models.StatusAll, "new, claimed, approved, closed, merged or all")
	rootCmd.AddCommand(listCmd, scoresCmd)
}

var statusColors = map[models.Status]func(a ...interface{}) string{
	models.StatusNew:      color.New(color.FgHiYellow).SprintFunc(),
	models.StatusClaimed:  color.New(color.FgHiCyan).SprintFunc(),
	models.StatusApproved: color.New(color.FgHiGreen).SprintFunc(),
	models.StatusClosed:   color.New(color.FgHiRed).SprintFunc(),
	models.StatusMerged:   color.New(color.FgHiMagenta).SprintFunc(),
}

func newTable(out io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewTable(out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

func listRun(ctx context.Context, out io.Writer, room, status string) error {
	keep := func(models.ReviewRequest) bool { return true }
	if status != models.StatusAll {
		s, ok := models.ParseStatus(status)
		if !ok {
			return fmt.Errorf("unknown status %q", status)
		}
		keep = services.WithStatus(s)
	}

	db, store, _, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(db)
	engine, err := services.NewQueueEngine(ctx, store, nil)
	if err != nil {
		return err
	}

	rooms := engine.Rooms()
	if room != "" {
		rooms = []string{room}
	}

	now := time.Now()
	table := newTable(out, "Room", "PR", "Status", "Submitter", "Reviewer", "Updated")
	count := 0
	for _, name := range rooms {
		for _, req := range engine.Queue(name) {
			if !keep(req) {
				continue
			}
			count++
			if err := table.Append([]string{
				name,
				req.Slug,
				statusColors[req.Status](string(req.Status)),
				req.Submitter.Name,
				req.Reviewer,
				services.TimeAgo(req.LastUpdated, now),
			}); err != nil {
				return err
			}
		}
	}

	if count == 0 {
		fmt.Fprintln(out, "No code reviews found.")
		return nil
	}
	return table.Render()
}

func scoresRun(ctx context.Context, out io.Writer) error {
	db, _, karma, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(db)

	scores, err := karma.All(ctx)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		fmt.Fprintln(out, "Nobody has any code review scores yet.")
		return nil
	}

	table := newTable(out, "User", "Given", "Received", "Karma")
	for _, s := range scores {
		if err := table.Append([]string{
			s.UserName,
			strconv.Itoa(s.Give),
			strconv.Itoa(s.Take),
			strconv.FormatFloat(s.Karma(), 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
