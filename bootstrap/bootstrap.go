// Package bootstrap wires the per-process state shared by every function host
// entry point.
package bootstrap

import (
	"context"
	"net/http"
	"sync"

	"nebs-backend/internal/app"
	"nebs-backend/internal/config"
	"nebs-backend/internal/infrastructure/database"
	"nebs-backend/internal/interfaces/router"
	"nebs-backend/internal/logger"
	"nebs-backend/internal/serverless"

	"github.com/rs/zerolog/log"
)

// Modules maps APP_MODULES names to application builders.
func Modules(db *database.Manager) map[string]app.Builder {
	return map[string]app.Builder{
		"api": func(ctx context.Context) (http.Handler, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			fiberApp, _, err := router.CreateApp(ctx, cfg, db)
			if err != nil {
				return nil, err
			}
			return router.Handler(fiberApp), nil
		},
	}
}

// NewManager returns a connection manager that reads its settings at dial
// time, so a configuration error surfaces on the first request instead of at
// process start.
func NewManager() *database.Manager {
	opts := database.Options{
		URI: func() (string, error) {
			cfg, err := config.Load()
			if err != nil {
				return "", err
			}
			return cfg.DatabaseURI, nil
		},
		Connector: database.ConnectorFunc(func(ctx context.Context, uri string, onLost func(error)) (database.Conn, error) {
			d := database.Dialer{AutoMigrate: true}
			if cfg, err := config.Load(); err == nil {
				d.DatabaseName = cfg.DatabaseName
			}
			return d.Connect(ctx, uri, onLost)
		}),
	}
	if cfg, err := config.Load(); err == nil {
		opts.WaitTimeout = cfg.DBWaitTimeout
		opts.ConnectTimeout = cfg.DBConnectTimeout
	}
	return database.NewManager(opts)
}

// New builds a dispatcher with its own manager and loader. Tests call it
// directly; hosts share one through Dispatcher.
func New() *serverless.Dispatcher {
	basics := config.ReadBasics()
	logger.Init(logger.Options{
		Level:      basics.LogLevel,
		Env:        basics.Env,
		Serverless: true,
	})

	db := NewManager()
	loader := app.NewLoader(app.Resolve(basics.Modules, Modules(db))...)
	log.Info().Strs("modules", basics.Modules).Str("env", basics.Env).Msg("Serverless handler initialized")
	return &serverless.Dispatcher{
		Apps:        loader,
		DB:          db,
		Development: basics.Env == config.EnvDevelopment,
	}
}

// Dispatcher returns the process-wide dispatcher.
var Dispatcher = sync.OnceValue(New)
