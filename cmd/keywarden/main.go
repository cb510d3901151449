package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keywarden/internal/httpapi"
	"keywarden/internal/server"
	"keywarden/pkg/config"
	"keywarden/pkg/db"
	"keywarden/pkg/hashistack/secretmanager"
	"keywarden/pkg/health"
	"keywarden/pkg/logger"
	"keywarden/pkg/otelcol"
	"keywarden/pkg/redis"
	"keywarden/pkg/task"
	"keywarden/services/apikey"
	apikeytask "keywarden/services/apikey/task"
)

func main() {
	opts := options()

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

func options() []fx.Option {
	return []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		health.Module,
		apikey.Module,
		apikeytask.Module,
		httpapi.Module,
		server.Module,
		fx.Invoke(
			migrate,
			db.RegisterConnectionPool,
			db.Otel,
			db.Metric,
		),
		fxLogger,
	}
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(&apikey.ApiKey{})
}
