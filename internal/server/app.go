// Package server wires configuration, storage and services together and runs
// the poikeeper HTTP API until the process is signalled to stop.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/poikeeper/internal/cryptox"
	"github.com/dmitrijs2005/poikeeper/internal/logging"
	"github.com/dmitrijs2005/poikeeper/internal/server/config"
	"github.com/dmitrijs2005/poikeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/poikeeper/internal/server/services"
)

// Seams for tests.
var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newRepositoryManager           = repomanager.NewPostgresRepositoryManager
	logOutput            io.Writer = os.Stdout
)

type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	services httpapi.Services
	server   runner
}

// Open validates the configuration, connects to the database and migrates
// the schema. The caller owns the returned *sql.DB.
func Open(ctx context.Context, c *config.Config) (*sql.DB, repomanager.RepositoryManager, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	return db, rm, nil
}

// NewServices builds the business services over one database handle.
func NewServices(db *sql.DB, rm repomanager.RepositoryManager, c *config.Config, l logging.Logger) (httpapi.Services, error) {
	codec, err := cryptox.NewCodec(c.EncryptionKey)
	if err != nil {
		return httpapi.Services{}, fmt.Errorf("encryption key: %w", err)
	}

	rs := services.NewRecordService(db, rm, codec, l.With("module", "records"))
	return httpapi.Services{
		Users:    services.NewUserService(db, rm, rs, c),
		Records:  rs,
		POIs:     services.NewPOIService(rs),
		Offenses: services.NewOffenseService(rs),
		Pictures: services.NewPictureService(rs, c),
	}, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(logOutput, c.LogLevel)

	db, rm, err := Open(ctx, c)
	if err != nil {
		return nil, err
	}

	svc, err := NewServices(db, rm, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		services: svc,
		server:   httpapi.NewHTTPServer(c, logger, svc, httpapi.NewMetrics()),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// closes the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(gctx)
	})

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "server stopped", "error", err)
	}

	app.logger.Info(ctx, "Closing database...")
	return errors.Join(err, app.db.Close())
}
