package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-code-review/handlers"
	"slack-code-review/models"
	"slack-code-review/services"
)

// testEnv は一時ディレクトリのsqliteを使う設定にする
func testEnv(t *testing.T) {
	t.Helper()
	orig := cfg
	cfg = &services.Config{
		Port:              "8080",
		DBPath:            filepath.Join(t.TempDir(), "queue.db"),
		BotName:           "hubot",
		GarbageExpiration: 24 * time.Hour,
		GarbageInterval:   time.Hour,
		LogLevel:          "info",
	}
	t.Cleanup(func() { cfg = orig })
}

func seed(t *testing.T, snapshot services.Snapshot) {
	t.Helper()
	db, store, _, err := openDB()
	require.NoError(t, err)
	defer closeDB(db)
	require.NoError(t, store.Save(context.Background(), snapshot))
}

func request(room, slug string, status models.Status, reviewer string, updated time.Time) models.ReviewRequest {
	return models.ReviewRequest{
		ID:          slug,
		Slug:        slug,
		URL:         "https://github.com/org/" + slug,
		Submitter:   models.User{ID: "U1", Name: "alice", Room: room},
		Reviewer:    reviewer,
		Status:      status,
		Room:        room,
		LastUpdated: updated,
	}
}

func TestListRun(t *testing.T) {
	testEnv(t)
	now := time.Now()
	seed(t, services.Snapshot{
		"C1": {
			request("C1", "web/3", models.StatusNew, "", now),
			request("C1", "api/12", models.StatusClaimed, "bob", now.Add(-2*time.Hour)),
		},
		"C2": {request("C2", "ops/7", models.StatusApproved, "carol", now)},
	})

	var out bytes.Buffer
	require.NoError(t, listRun(context.Background(), &out, "", models.StatusAll))
	assert.Contains(t, out.String(), "web/3")
	assert.Contains(t, out.String(), "api/12")
	assert.Contains(t, out.String(), "2 hours ago")
	assert.Contains(t, out.String(), "ops/7")

	out.Reset()
	require.NoError(t, listRun(context.Background(), &out, "C1", string(models.StatusClaimed)))
	assert.Contains(t, out.String(), "api/12")
	assert.Contains(t, out.String(), "bob")
	assert.NotContains(t, out.String(), "web/3")
	assert.NotContains(t, out.String(), "ops/7")

	out.Reset()
	require.NoError(t, listRun(context.Background(), &out, "C3", models.StatusAll))
	assert.Equal(t, "No code reviews found.\n", out.String())

	assert.Error(t, listRun(context.Background(), &out, "", "stale"))
}

func TestGCRun(t *testing.T) {
	testEnv(t)
	now := time.Now()
	seed(t, services.Snapshot{
		"C1": {
			request("C1", "web/3", models.StatusNew, "", now),
			request("C1", "api/12", models.StatusMerged, "", now.Add(-48*time.Hour)),
		},
	})

	var out bytes.Buffer
	require.NoError(t, gcRun(context.Background(), &out, "", 24*time.Hour))
	assert.Contains(t, out.String(), "removed 1 code reviews older than 24h0m0s")

	db, store, _, err := openDB()
	require.NoError(t, err)
	defer closeDB(db)
	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot["C1"], 1)
	assert.Equal(t, "web/3", snapshot["C1"][0].Slug)
}

func TestFlushRun(t *testing.T) {
	testEnv(t)
	seed(t, services.Snapshot{"C1": {request("C1", "web/3", models.StatusNew, "", time.Now())}})

	db, _, karma, err := openDB()
	require.NoError(t, err)
	require.NoError(t, karma.RecordClaim(context.Background(), "bob", "alice"))
	closeDB(db)

	var out bytes.Buffer
	require.NoError(t, flushRun(context.Background(), &out, "", true))
	assert.Contains(t, out.String(), "flushed 1 rooms")
	assert.Contains(t, out.String(), "flushed karma scores")

	out.Reset()
	require.NoError(t, scoresRun(context.Background(), &out))
	assert.Equal(t, "Nobody has any code review scores yet.\n", out.String())

	out.Reset()
	require.NoError(t, listRun(context.Background(), &out, "", models.StatusAll))
	assert.Equal(t, "No code reviews found.\n", out.String())
}

// liveServer は serve と同じようにDBからエンジンを作り、管理APIを公開する
func liveServer(t *testing.T) (*services.QueueEngine, *services.GormStore, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg.AdminToken = "admin-tok"

	db, store, karma, err := openDB()
	require.NoError(t, err)
	t.Cleanup(func() { closeDB(db) })
	engine, err := services.NewQueueEngine(context.Background(), store, karma)
	require.NoError(t, err)

	gc := services.NewGarbageCollector(engine, cfg.GarbageExpiration)
	srv := httptest.NewServer(handlers.NewRouter(handlers.Server{
		GitHub: handlers.NewGitHubHandler(engine, services.LogNotifier{}, "", true),
		Admin:  handlers.NewAdminHandler(engine, gc, karma, cfg.AdminToken),
	}))
	t.Cleanup(srv.Close)
	return engine, store, srv.URL
}

func TestFlushRun_Server(t *testing.T) {
	testEnv(t)
	seed(t, services.Snapshot{"C1": {request("C1", "api/12", models.StatusNew, "", time.Now())}})
	engine, store, server := liveServer(t)

	var out bytes.Buffer
	require.NoError(t, flushRun(context.Background(), &out, server, false))
	assert.Contains(t, out.String(), "flushed 1 rooms")
	assert.Empty(t, engine.Rooms())

	// serveが次に保存しても消したものは戻らない
	carol := models.User{ID: "U3", Name: "carol", Room: "C2"}
	_, err := engine.Submit(context.Background(), carol, "https://github.com/org/web/pull/3")
	require.NoError(t, err)

	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, snapshot, "C1")
	require.Len(t, snapshot["C2"], 1)
	assert.Equal(t, "web/3", snapshot["C2"][0].Slug)
}

func TestGCRun_Server(t *testing.T) {
	testEnv(t)
	now := time.Now()
	seed(t, services.Snapshot{
		"C1": {
			request("C1", "web/3", models.StatusNew, "", now),
			request("C1", "api/12", models.StatusMerged, "", now.Add(-48*time.Hour)),
		},
	})
	engine, store, server := liveServer(t)

	var out bytes.Buffer
	require.NoError(t, gcRun(context.Background(), &out, server, 24*time.Hour))
	assert.Contains(t, out.String(), "removed 1 code reviews older than 24h0m0s")
	require.Len(t, engine.Queue("C1"), 1)

	_, err := engine.Submit(context.Background(), models.User{ID: "U1", Name: "alice", Room: "C1"}, "https://github.com/org/ops/pull/7")
	require.NoError(t, err)
	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot["C1"], 2)
	assert.Equal(t, "ops/7", snapshot["C1"][0].Slug)
	assert.Equal(t, "web/3", snapshot["C1"][1].Slug)
}

func TestFlushRun_ServerUnauthorized(t *testing.T) {
	testEnv(t)
	engine, _, server := liveServer(t)
	_, err := engine.Submit(context.Background(), models.User{ID: "U1", Name: "alice", Room: "C1"}, "https://github.com/org/web/pull/3")
	require.NoError(t, err)

	cfg.AdminToken = "wrong"
	var out bytes.Buffer
	err = flushRun(context.Background(), &out, server, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Len(t, engine.Queue("C1"), 1)
}

func TestServerURL(t *testing.T) {
	testEnv(t)

	_, err := serverURL(gcCmd)
	assert.ErrorContains(t, err, "ADMIN_TOKEN is not set")

	cfg.AdminToken = "admin-tok"
	server, err := serverURL(gcCmd)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", server)

	require.NoError(t, gcCmd.Flags().Set("offline", "true"))
	t.Cleanup(func() { _ = gcCmd.Flags().Set("offline", "false") })
	server, err = serverURL(gcCmd)
	require.NoError(t, err)
	assert.Empty(t, server)
}

func TestScoresRun(t *testing.T) {
	testEnv(t)
	db, _, karma, err := openDB()
	require.NoError(t, err)
	require.NoError(t, karma.RecordClaim(context.Background(), "bob", "alice"))
	closeDB(db)

	var out bytes.Buffer
	require.NoError(t, scoresRun(context.Background(), &out))
	assert.Contains(t, out.String(), "alice")
	assert.Contains(t, out.String(), "bob")
}
