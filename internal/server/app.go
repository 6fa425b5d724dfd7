// Package server initializes and runs the PointShare server: it opens the
// database, wires repositories and services, and serves gRPC alongside an
// HTTP endpoint for websocket notifications and Prometheus metrics.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/dmitrijs2005/pointshare/internal/server/avatar"
	"github.com/dmitrijs2005/pointshare/internal/server/config"
	"github.com/dmitrijs2005/pointshare/internal/server/jobs"
	"github.com/dmitrijs2005/pointshare/internal/server/mail"
	"github.com/dmitrijs2005/pointshare/internal/server/metrics"
	"github.com/dmitrijs2005/pointshare/internal/server/notify"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pointshare/internal/server/services"
	"github.com/dmitrijs2005/pointshare/internal/server/storage"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/pointshare/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	metrics   *metrics.Metrics
	hub       *notify.Hub
	relay     *notify.Relay
	redis     *redis.Client
	scheduler *jobs.Scheduler
	grpc      *gs.GRPCServer
	accounts  *services.AccountService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	mt := metrics.New()

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	store, err := storage.NewS3Storage(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	var mailer services.Mailer
	if c.EmailAPIKey != "" {
		mailer = mail.NewResendMailer(c.EmailAPIKey, c.EmailFrom)
	} else {
		logger.Warn(ctx, "no email api key configured, confirmation emails are only logged")
		mailer = mail.NewLogMailer(logger)
	}

	app := &App{config: c, logger: logger, db: db, metrics: mt}
	app.hub = notify.NewHub([]byte(c.SecretKey), mt, logger)

	var notifier services.Notifier = app.hub
	switch c.NotifierKind {
	case config.NotifierWebsocket:
	case config.NotifierRedis:
		rdb, err := notify.NewRedisClient(c.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		app.redis = rdb
		app.relay = notify.NewRelay(rdb, app.hub, logger)
		notifier = notify.NewRedisNotifier(rdb)
	default:
		db.Close()
		return nil, fmt.Errorf("unknown notifier %q", c.NotifierKind)
	}

	credentials := services.NewCredentialService(db, rm, c, mt, logger)
	ledger := services.NewLedgerService(db, rm, mt, logger)
	votes := services.NewVoteService(db, rm, ledger, c, mt, logger)
	notifications := services.NewNotificationService(db, rm, notifier, mt, logger)
	images := services.NewImageService(db, rm, store, notifications, mt, logger)
	app.accounts = services.NewAccountService(db, rm, c, credentials, ledger, votes, images,
		store, mailer, avatar.NewIdenticon(), mt, logger)

	app.scheduler, err = jobs.NewScheduler(c.CleanupSchedule, credentials, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("scheduler init error: %w", err)
	}

	app.grpc = gs.NewGRPCServer(c, logger, mt, gs.Services{
		Accounts:      app.accounts,
		Votes:         votes,
		Images:        images,
		Notifications: notifications,
		Links:         store,
	})

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", app.hub.ServeWS)
	mux.Handle("/metrics", app.metrics.Handler())
	return mux
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.httpHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startRelay(ctx context.Context) {
	if err := app.relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.logger.Error(ctx, "notification relay stopped", "error", err)
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if app.config.BootstrapAccounts {
		if err := app.accounts.BootstrapDevAccounts(ctx); err != nil {
			app.logger.Error(ctx, "bootstrap accounts failed", "error", err)
		}
	}

	app.scheduler.Start()

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startRelay(ctx)
		}()
	}

	wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.scheduler.Stop(stopCtx)

	app.close()
}

func (app *App) close() {
	if app.redis != nil {
		app.redis.Close()
	}
	app.db.Close()
}
