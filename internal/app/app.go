// Package app initializes and runs the ContactKeeper backend: it wires
// configuration, the database with embedded migrations, the optional
// identity cache, avatar storage, and the services, and handles graceful
// shutdown.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/contactkeeper/internal/auth"
	"github.com/dmitrijs2005/contactkeeper/internal/cache"
	"github.com/dmitrijs2005/contactkeeper/internal/config"
	"github.com/dmitrijs2005/contactkeeper/internal/logging"
	"github.com/dmitrijs2005/contactkeeper/internal/repositories/repomanager"
	"github.com/dmitrijs2005/contactkeeper/internal/services"
	"github.com/dmitrijs2005/contactkeeper/internal/storage"
)

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	identityCache  cache.Identity
	guard          *auth.Guard
	userService    *services.UserService
	contactService *services.ContactService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var idc cache.Identity = cache.Noop{}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisIdentity(cfg.RedisAddr, logger)
		if err != nil {
			// cache is optional, a dead Redis must not block startup
			logger.Warn(ctx, "identity cache unavailable, continuing without it", "error", err)
		} else {
			idc = rc
		}
	}

	avatars := storage.NewS3AvatarStore(cfg)

	return &App{
		config:         cfg,
		logger:         logger,
		db:             db,
		identityCache:  idc,
		guard:          auth.NewGuard(cfg.SecretKey),
		userService:    services.NewUserService(db, rm, avatars, idc, cfg),
		contactService: services.NewContactService(db, rm, avatars, idc, cfg),
	}, nil
}

// Guard exposes the token resolver for a transport layer.
func (app *App) Guard() *auth.Guard { return app.guard }

// Users exposes the user service for a transport layer.
func (app *App) Users() *services.UserService { return app.userService }

// Contacts exposes the contact service for a transport layer.
func (app *App) Contacts() *services.ContactService { return app.contactService }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until the process receives a termination signal, then releases
// resources.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	<-ctx.Done()

	app.logger.Info(ctx, "Shutting down...")
	app.Close()
}

// Close releases the database and cache connections.
func (app *App) Close() {
	if c, ok := app.identityCache.(*cache.RedisIdentity); ok {
		_ = c.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}
