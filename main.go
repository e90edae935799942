package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/savagetongue/mess-connect0209/config"
	"github.com/savagetongue/mess-connect0209/database"
	"github.com/savagetongue/mess-connect0209/router"
	"github.com/savagetongue/mess-connect0209/services"
	"github.com/savagetongue/mess-connect0209/utils"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		utils.InfoLogger.Println("Warning: .env file not found")
	}
	utils.InitLogger()

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}
	utils.SetJWTSecret(cfg.JWTSecret)
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer func() {
		if backend.Close != nil {
			if err := backend.Close(); err != nil {
				utils.ErrorLogger.Errorf("Error closing store: %v", err)
			}
		}
	}()

	gateway := services.NewRazorpayService(services.RazorpayConfigFrom(cfg.Gateway))
	if err := gateway.ValidateConfig(); err != nil {
		utils.InfoLogger.Warnf("Payments disabled until configured: %v", err)
	}

	r, err := newApp(ctx, cfg, backend, gateway)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to start: %v", err)
	}

	go pruneRevokedTokens(ctx, time.Hour)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	<-ctx.Done()
	utils.InfoLogger.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.ErrorLogger.Errorf("Graceful shutdown failed: %v", err)
	}
}

// newApp wires stores, services and routes over backend, and seeds the
// manager accounts.
func newApp(ctx context.Context, cfg config.Config, backend database.Backend, gateway services.Gateway) (*gin.Engine, error) {
	stores := services.NewStores(backend)
	users := services.NewUserService(stores)
	payments := services.NewPaymentService(stores, gateway)

	if err := users.SeedAccounts(ctx, cfg.SeedAdminPassword); err != nil {
		return nil, fmt.Errorf("seed accounts: %w", err)
	}

	return router.SetupRouter(router.Services{
		Stores:        stores,
		Users:         users,
		Payments:      payments,
		Settings:      services.NewSettingsService(stores),
		Notifications: services.NewNotificationService(stores),
		Admin:         services.NewAdminService(stores, payments, users, cfg.SeedAdminPassword),
	}), nil
}

func openBackend(ctx context.Context, cfg config.Config) (database.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendSQL:
		db, err := config.InitDB(cfg)
		if err != nil {
			return database.Backend{}, err
		}
		return database.NewGormBackend(db)
	case config.BackendRedis:
		client, err := config.InitRedis(ctx, cfg)
		if err != nil {
			return database.Backend{}, err
		}
		return database.NewRedisBackend(client), nil
	case config.BackendMemory:
		utils.InfoLogger.Warn("Using in-memory store, data is lost on restart")
		return database.NewMemoryBackend(), nil
	default:
		return database.Backend{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func pruneRevokedTokens(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			utils.PruneBlacklist(now)
		}
	}
}
