package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/voicekit/support-bot/internal/api/http"
	"github.com/voicekit/support-bot/internal/api/http/handlers"
	"github.com/voicekit/support-bot/internal/bot"
	"github.com/voicekit/support-bot/internal/config"
	"github.com/voicekit/support-bot/internal/domain"
	"github.com/voicekit/support-bot/internal/events"
	"github.com/voicekit/support-bot/internal/host"
	"github.com/voicekit/support-bot/internal/observability"
	"github.com/voicekit/support-bot/internal/store"
	"github.com/voicekit/support-bot/internal/support"
	"github.com/voicekit/support-bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roles, err := domain.LoadRoles(cfg.Support.RolesFile)
	if err != nil {
		logger.Fatal("failed to load roles", zap.Error(err))
	}
	roleSet, err := domain.NewRoleSet(roles)
	if err != nil {
		logger.Fatal("invalid role configuration", zap.Error(err))
	}

	provider, err := newProvider(cfg, roleSet, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer provider.Close()

	// The host session is in-process until a voice-server adapter drives it;
	// events and commands enter through the dispatcher and router below.
	session := host.NewMemorySession()
	session.AddChannel(cfg.Support.ChannelID, "Support")

	sup := support.NewSupport(support.Dependencies{
		Session: session,
		Store:   provider,
		Roles:   roleSet,
		Logger:  logger,
		Config:  cfg.Support,
	})
	if err := sup.Setup(ctx, cfg.Store.Namespace); err != nil {
		logger.Fatal("support setup failed", zap.Error(err))
	}

	dispatcher := events.NewDispatcher()
	sup.RegisterHandlers(dispatcher)
	session.SetSink(&eventBridge{dispatcher: dispatcher, logger: logger})

	metrics := observability.NewMetrics()
	router := bot.NewRouter(cfg.Support.CommandPrefix, session, logger, metrics)
	sup.RegisterCommands(router)

	sweeper, err := worker.StartSweeper(sup, logger, cfg.Support.SweepInterval())
	if err != nil {
		logger.Fatal("failed to start sweeper", zap.Error(err))
	}

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics)
	statusHandler := handlers.NewStatusHandler(cfg.App.Name, cfg.App.Version, sup)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Status: statusHandler,
		Token:  cfg.App.StatusToken,
	})

	go func() {
		if err := app.Listen(cfg.App.StatusAddr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	logger.Info("support bot running",
		zap.String("store_backend", cfg.Store.Backend),
		zap.Int("departments", roleSet.Len()))

	waitForShutdown(logger)

	sweeper.Stop()
	_ = app.Shutdown()
}

func newProvider(cfg *config.Config, roles *domain.RoleSet, logger *zap.Logger) (store.Provider, error) {
	switch cfg.Store.Backend {
	case "redis":
		return store.NewRedisProvider(cfg.Redis, roles, logger), nil
	default:
		return store.NewBoltProvider(cfg.Store.Dir, roles, logger)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
