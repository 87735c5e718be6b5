package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slack-code-review/handlers"
	"slack-code-review/services"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and Slack events server",
}

func init() {
	// RunE is assigned here to avoid an initialization cycle (serveRun reads serveCmd's flags).
	serveCmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serveRun(ctx)
	}
	serveCmd.Flags().StringP("port", "p", "", "port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func serveRun(ctx context.Context) error {
	if port, _ := serveCmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	db, store, karma, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB(db)

	engine, err := services.NewQueueEngine(ctx, store, karma)
	if err != nil {
		return err
	}

	var (
		notifier services.Notifier      = services.LogNotifier{}
		users    services.UserDirectory // トークンが無ければIDをそのまま名前にする
	)
	if cfg.SlackBotToken != "" {
		slackNotifier := services.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAPIURL)
		notifier, users = slackNotifier, slackNotifier
	}

	gc := services.NewGarbageCollector(engine, cfg.GarbageExpiration)
	gc.Start(ctx, cfg.GarbageInterval)
	defer gc.Stop()

	commands := handlers.NewCommandRouter(engine, karma, cfg.BotName, cfg.SlackBotUserID)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := handlers.Server{
		GitHub:  handlers.NewGitHubHandler(engine, notifier, cfg.GitHubWebhookSecret, cfg.EmojiApprove),
		Slack:   handlers.NewSlackHandler(commands, notifier, users, cfg.SlackSigningSecret),
		Garbage: gc,
	}
	if cfg.AdminToken != "" {
		server.Admin = handlers.NewAdminHandler(engine, gc, karma, cfg.AdminToken)
	} else {
		zap.S().Warn("ADMIN_TOKEN is not set: gc and flush commands cannot reach this server")
	}
	router := handlers.NewRouter(server)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.S().Infof("starting http server: addr=%s, rooms=%d", srv.Addr, len(engine.Rooms()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.S().Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
