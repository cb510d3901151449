package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"keywarden/pkg/config"
	"keywarden/pkg/db"
	"keywarden/pkg/hashistack/secretmanager"
	"keywarden/pkg/logger"
	"keywarden/services/apikey"
)

// Seeds one bootstrap admin key and prints the plaintext to stdout. The
// plaintext is shown only here; store it before closing the terminal.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		apikey.Module,
		fx.Invoke(seed),
		fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
			return fxevent.NopLogger
		}),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	if err := fx.New(opts...).Start(context.Background()); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func seed(gormDB *gorm.DB, svc *apikey.Service) error {
	ctx := context.Background()

	if err := gormDB.AutoMigrate(&apikey.ApiKey{}); err != nil {
		return err
	}

	entity, plaintext, err := svc.Create(ctx, apikey.CreateInput{
		Name:        "bootstrap-admin",
		Description: "seeded bootstrap key",
		IsActive:    true,
		Scopes:      []string{"admin"},
	})
	if err != nil {
		return err
	}

	zap.L().Info("seeded api key",
		zap.String("id", entity.ID),
		zap.String("key_id", entity.KeyID),
	)
	fmt.Println(plaintext)
	return nil
}
