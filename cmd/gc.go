package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"slack-code-review/services"
)

const adminTimeout = 30 * time.Second

const offlineHelp = `
By default the command is sent to the running serve process (POST /admin/...,
authorized with ADMIN_TOKEN) so that its in-memory queues are changed too.
--offline opens DB_PATH directly instead. Do not use --offline while serve is
running: serve keeps every queue in memory and writes all of them back on its
next change, which restores whatever this command removed.`

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove code reviews that have not been updated within GARBAGE_EXPIRATION",
	Long:  "Remove code reviews that have not been updated within GARBAGE_EXPIRATION.\n" + offlineHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		expiration, _ := cmd.Flags().GetDuration("expiration")
		if expiration <= 0 {
			expiration = cfg.GarbageExpiration
		}
		server, err := serverURL(cmd)
		if err != nil {
			return err
		}
		return gcRun(cmd.Context(), cmd.OutOrStdout(), server, expiration)
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Empty every room's queue (and the karma scores with --karma)",
	Long:  "Empty every room's queue (and the karma scores with --karma).\n" + offlineHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		withKarma, _ := cmd.Flags().GetBool("karma")
		server, err := serverURL(cmd)
		if err != nil {
			return err
		}
		return flushRun(cmd.Context(), cmd.OutOrStdout(), server, withKarma)
	},
}

func init() {
	for _, c := range []*cobra.Command{gcCmd, flushCmd} {
		c.Flags().String("server", "", "base URL of the running serve process (default http://localhost:$PORT)")
		c.Flags().Bool("offline", false, "open the database directly; only while serve is stopped")
	}
	gcCmd.Flags().Duration("expiration", 0, "override GARBAGE_EXPIRATION (e.g. 168h)")
	flushCmd.Flags().Bool("karma", false, "also delete karma scores")
	rootCmd.AddCommand(gcCmd, flushCmd)
}

// serverURL は送り先のserveを返す。--offline なら空
func serverURL(cmd *cobra.Command) (string, error) {
	if offline, _ := cmd.Flags().GetBool("offline"); offline {
		return "", nil
	}
	if cfg.AdminToken == "" {
		return "", errors.New("ADMIN_TOKEN is not set: set it for both serve and this command, or use --offline while serve is stopped")
	}
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		server = "http://localhost:" + cfg.Port
	}
	return server, nil
}

func gcRun(ctx context.Context, out io.Writer, server string, expiration time.Duration) error {
	var removed int
	if server != "" {
		var res struct {
			Removed int `json:"removed"`
		}
		if err := postAdmin(ctx, server, "/admin/gc", url.Values{"expiration": {expiration.String()}}, &res); err != nil {
			return err
		}
		removed = res.Removed
	} else {
		n, err := gcOffline(ctx, expiration)
		if err != nil {
			return err
		}
		removed = n
	}
	fmt.Fprintf(out, "%s removed %d code reviews older than %s\n", color.GreenString("✓"), removed, expiration)
	return nil
}

func gcOffline(ctx context.Context, expiration time.Duration) (int, error) {
	db, store, karma, err := openDB()
	if err != nil {
		return 0, err
	}
	defer closeDB(db)
	engine, err := services.NewQueueEngine(ctx, store, karma)
	if err != nil {
		return 0, err
	}
	return services.NewGarbageCollector(engine, expiration).Collect(ctx)
}

func flushRun(ctx context.Context, out io.Writer, server string, withKarma bool) error {
	var rooms int
	if server != "" {
		var res struct {
			Rooms int `json:"rooms"`
		}
		if err := postAdmin(ctx, server, "/admin/flush", url.Values{"karma": {strconv.FormatBool(withKarma)}}, &res); err != nil {
			return err
		}
		rooms = res.Rooms
	} else {
		n, err := flushOffline(ctx, withKarma)
		if err != nil {
			return err
		}
		rooms = n
	}

	fmt.Fprintf(out, "%s flushed %d rooms\n", color.GreenString("✓"), rooms)
	if withKarma {
		fmt.Fprintf(out, "%s flushed karma scores\n", color.GreenString("✓"))
	}
	return nil
}

func flushOffline(ctx context.Context, withKarma bool) (int, error) {
	db, store, karma, err := openDB()
	if err != nil {
		return 0, err
	}
	defer closeDB(db)
	engine, err := services.NewQueueEngine(ctx, store, karma)
	if err != nil {
		return 0, err
	}

	rooms := len(engine.Rooms())
	if err := engine.Flush(ctx); err != nil {
		return 0, err
	}
	if withKarma {
		if err := karma.Flush(ctx); err != nil {
			return rooms, err
		}
	}
	return rooms, nil
}

// postAdmin はserveの管理APIを呼んでJSONの応答を res に読み込む
func postAdmin(ctx context.Context, server, path string, query url.Values, res any) error {
	ctx, cancel := context.WithTimeout(ctx, adminTimeout)
	defer cancel()

	endpoint := server + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return errors.Wrapf(err, "invalid server url %s", server)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.AdminToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to reach serve at %s (use --offline if it is not running)", server)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return errors.Errorf("%s %s: %s %s", http.MethodPost, path, resp.Status, body.Error)
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(res), "failed to decode server response")
}
