package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ksred/botfleet-control-plane/internal/adminapi"
	"github.com/ksred/botfleet-control-plane/internal/agentapi"
	"github.com/ksred/botfleet-control-plane/internal/clock"
	"github.com/ksred/botfleet-control-plane/internal/config"
	"github.com/ksred/botfleet-control-plane/internal/coordinator"
	"github.com/ksred/botfleet-control-plane/internal/ginmiddleware"
	"github.com/ksred/botfleet-control-plane/internal/iaas"
	"github.com/ksred/botfleet-control-plane/internal/reconciler"
	"github.com/ksred/botfleet-control-plane/internal/repository"
	"github.com/ksred/botfleet-control-plane/internal/repository/migrations"
	"github.com/ksred/botfleet-control-plane/internal/secretcipher"
)

// init configures application logging, mirroring
// ksred-klear-api/cmd/server/main.go's init(): pretty console output
// outside production, global level from DEBUG.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	cfg := config.Load()

	if warning := secretcipher.LowEntropyWarning(cfg.EncryptionKey); warning != "" {
		zlog.Warn().Str("component", "startup").Msg(warning)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := migrations.CoreTables(db); err != nil {
		zlog.Fatal().Err(err).Msg("failed to run core table migrations")
	}
	if err := migrations.AtomicPrimitives(db); err != nil {
		zlog.Fatal().Err(err).Msg("failed to run atomic primitive migrations")
	}

	accounts := repository.NewGormAccountRepository(db)
	counters := repository.NewGormCounterRepository(db)
	bots := repository.NewGormBotRepository(db)
	configs := repository.NewGormConfigRepository(db)
	vms := repository.NewGormVMRepository(db)

	cipher, err := secretcipher.New(cfg.EncryptionKey)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize secret cipher")
	}

	provider, err := iaas.NewDigitalOceanClient(cfg.IaaSToken)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize iaas provider")
	}

	sysClock := clock.System{}

	co := coordinator.New(accounts, counters, bots, configs, vms, provider, cipher, sysClock, coordinator.Config{
		ControlPlaneURL: cfg.ControlPlaneURL,
		VMRegion:        cfg.VMRegion,
		VMSize:          cfg.VMSize,
		VMImage:         cfg.VMImage,
		Customizer: coordinator.GuestCustomizer{
			RepoURL:      cfg.GuestRepoURL,
			Ref:          cfg.GuestRef,
			WorkspaceDir: cfg.GuestWorkspaceDir,
			SkipDeps:     cfg.GuestSkipDeps,
		},
	})
	rec := reconciler.New(bots, configs, vms, provider, cipher, sysClock)

	sweeper := reconciler.NewStaleSweeper(rec, cfg.SweepInterval, cfg.HeartbeatStaleAfter)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go sweeper.Start(sweepCtx)

	router := gin.Default()
	router.Use(ginmiddleware.RateLimit())

	adminGroup := router.Group("/admin")
	adminapi.RegisterRoutes(adminGroup, cfg.AdminBearer, co, rec, accounts, bots, configs)

	botGroup := router.Group("/bot")
	agentapi.RegisterRoutes(botGroup, bots, rec)

	srv := &http.Server{
		Addr:    cfg.ServerHost + ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("server forced to shutdown")
	}

	zlog.Info().Msg("server exiting")
}
