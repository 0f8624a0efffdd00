// Package server wires the gatekeeper components together and runs them
// until the process is signalled to stop.
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

	"github.com/dmitrijs2005/gatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/audit"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/cookies"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/rest"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	zap        *logging.ZapLogger
	db         *sql.DB
	dispatcher *audit.Dispatcher
	server     *rest.Server
}

// NewApp validates c, connects to the database, applies migrations and
// builds the HTTP stack.
func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	zl, err := logging.NewZapLogger(c.LogLevel, !c.IsDevelopment())
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}
	logger := logging.Logger(zl)

	ctx, cancel := context.WithTimeout(context.Background(), c.DatabaseConnectTimeout)
	defer cancel()

	db, err := repomanager.Open(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := connectDB(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db connect error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	codec, err := auth.NewTokenCodec(c.SecretKey, c.TokenIssuer, c.TokenAudience, c.AccessTokenValidityDuration)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	m := metrics.New()

	sink, err := newAuditSink(ctx, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit init error: %w", err)
	}
	dispatcher := audit.NewDispatcher(sink, c.AuditBufferSize, logger, audit.WithDropHook(m.AuditDrop))

	transport := cookies.NewTransport(c.IsDevelopment(), c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	sessions := services.NewSessionService(db, rm, cryptox.NewArgon2idHasher(cryptox.DefaultParams),
		codec, c.RefreshTokenValidityDuration, logger, m)

	router := rest.NewRouter(
		rest.NewFailureMapper(logger, dispatcher, m, c.IsDevelopment()),
		rest.NewAccessGate(codec, transport, c.DenyUnmarked()),
		rest.NewAuthHandlers(sessions, transport),
		m,
		logger,
	)
	warnUnmarked(ctx, logger, c, router.Unmarked())

	return &App{
		config:     c,
		logger:     logger,
		zap:        zl,
		db:         db,
		dispatcher: dispatcher,
		server:     rest.NewServer(c.EndpointAddrHTTP, router, logger, c.ShutdownTimeout),
	}, nil
}

// connectDB pings db with exponential backoff until it answers or ctx ends.
func connectDB(ctx context.Context, db *sql.DB, logger logging.Logger) error {
	b := retry.WithCappedDuration(5*time.Second, retry.NewExponential(200*time.Millisecond))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			logger.Warn(ctx, "database not ready, retrying", logging.ErrorAttrs(err)...)
			return retry.RetryableError(oops.Code("DB_PING_FAILED").Wrap(err))
		}
		return nil
	})
}

// newAuditSink always logs records and additionally archives them in S3
// when enabled.
func newAuditSink(ctx context.Context, c *config.Config, logger logging.Logger) (audit.Sink, error) {
	logSink := audit.NewLoggerSink(logger)
	if !c.AuditS3Enabled {
		return logSink, nil
	}

	client, err := audit.NewS3Client(ctx, audit.S3Config{
		User:         c.S3RootUser,
		Password:     c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	if err != nil {
		return nil, err
	}
	return audit.MultiSink{logSink, audit.NewS3Sink(client, c.S3Bucket)}, nil
}

func warnUnmarked(ctx context.Context, logger logging.Logger, c *config.Config, routes []string) {
	if c.DenyUnmarked() || len(routes) == 0 {
		return
	}
	logger.Warn(ctx, "routes without an access marker are served unauthenticated",
		"policy", c.UnmarkedRoutePolicy, "routes", routes)
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

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server failed", logging.ErrorAttrs(err)...)
		cancelFunc()
	}
}

// Run serves until a signal arrives or ctx is cancelled, then drains the
// audit queue and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.dispatcher.Close()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", logging.ErrorAttrs(err)...)
	}
	app.logger.Info(ctx, "App stopped")
	_ = app.zap.Sync()
}
