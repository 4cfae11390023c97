// Package server wires the medledger application together: configuration,
// storage, the audit recorder, domain services and the HTTP API, and runs
// it until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/clinsafe/medledger/internal/logging"
	"github.com/clinsafe/medledger/internal/server/config"
	"github.com/clinsafe/medledger/internal/server/httpapi"
	"github.com/clinsafe/medledger/internal/server/ratelimit"
	"github.com/clinsafe/medledger/internal/server/repositories/repomanager"
	"github.com/clinsafe/medledger/internal/server/services"
	"github.com/clinsafe/medledger/internal/syncx"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	recorder *services.Recorder
	http     *httpapi.HTTPServer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	gin.SetMode(gin.ReleaseMode)

	logger := logging.NewDefault(cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	auditService := services.NewAuditService(db, m)
	recorder := services.NewRecorder(auditService, cfg, logger)

	// The login throttle is optional: without a redis address logins are
	// not rate limited.
	var limiter services.LoginLimiter
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = ratelimit.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		limiter = ratelimit.NewSlidingWindow(rdb, cfg.LoginRateLimit, cfg.LoginRateWindow)
	}

	chainLocks := syncx.NewKeyedMutex()
	accounts := services.NewAccountService(db, m, recorder, limiter, cfg, logger)
	records := services.NewRecordService(db, m, recorder, auditService, logger, chainLocks)
	certificates := services.NewCertificateService(db, m, recorder, logger, chainLocks)
	integrity := services.NewIntegrityService(db, m)
	attachments := services.NewAttachmentService(db, m, cfg, auditService, logger)

	httpServer := httpapi.NewHTTPServer(cfg.EndpointAddrHTTP, logger, cfg.SecretKey, httpapi.Handlers{
		Auth:         httpapi.NewAuthHandler(accounts),
		Records:      httpapi.NewRecordHandler(records, attachments),
		Certificates: httpapi.NewCertificateHandler(certificates),
		Admin:        httpapi.NewAdminHandler(auditService, integrity),
	})

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		redis:    rdb,
		recorder: recorder,
		http:     httpServer,
	}, nil
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

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.recorder.Start()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.http.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	app.shutdown(context.Background())
}

// shutdown drains and closes everything behind the HTTP server: first the
// audit recorder so queued events reach storage, then redis and the
// database.
func (app *App) shutdown(ctx context.Context) {
	app.logger.Info(ctx, "Draining audit recorder...")
	app.recorder.Close()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "error closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "error closing database", "error", err)
	}

	stats := app.recorder.Stats()
	app.logger.Info(ctx, "Shutdown complete",
		"audit_enqueued", stats.Enqueued,
		"audit_appended", stats.Appended,
		"audit_dropped", stats.Dropped,
	)
}
