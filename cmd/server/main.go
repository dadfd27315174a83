package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"

	"github.com/uebergang/gateway/internal/api"
	"github.com/uebergang/gateway/internal/auth"
	"github.com/uebergang/gateway/internal/ledger"
	"github.com/uebergang/gateway/internal/session"
	"github.com/uebergang/gateway/internal/signin"
	"github.com/uebergang/gateway/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup WebAuthn
	wconfig := &webauthn.Config{
		RPDisplayName: "Übergang",
		RPID:          cfg.RPID(),
		RPOrigins:     cfg.RPOrigins,
	}

	webAuthn, err := webauthn.New(wconfig)
	if err != nil {
		slog.Error("Failed to create WebAuthn instance", "error", err)
		os.Exit(1)
	}

	// Setup directory storage
	var directory storage.Directory
	switch cfg.DirectoryMode {
	case "s3":
		s3Directory, err := storage.NewS3Directory(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.UseSSL)
		if err != nil {
			slog.Error("Failed to create S3 directory", "error", err)
			os.Exit(1)
		}
		directory = s3Directory
		slog.Info("Using S3 directory", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
	case "filesystem":
		fsDirectory, err := storage.NewFilesystemDirectory(cfg.DataPath)
		if err != nil {
			slog.Error("Failed to create filesystem directory", "error", err)
			os.Exit(1)
		}
		directory = fsDirectory
		slog.Info("Using filesystem directory", "path", cfg.DataPath)
	case "memory":
		directory = storage.NewMemoryDirectory()
		slog.Warn("Using in-memory directory (not persistent)")
	default:
		slog.Error("Invalid DIRECTORY_MODE", "mode", cfg.DirectoryMode, "valid_modes", []string{"memory", "filesystem", "s3"})
		os.Exit(1)
	}

	// Setup session and ceremony state
	var stateStore storage.StateStore
	switch cfg.StateMode {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// Test Redis connection
		ctx := context.Background()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		stateStore = storage.NewRedisStateStore(redisClient)
		slog.Info("Using Redis state", "addr", cfg.Redis.Addr)
	case "memory":
		stateStore = storage.NewMemoryStateStore()
		slog.Warn("Using in-memory state (not persistent)")
	default:
		slog.Error("Invalid STATE_MODE", "mode", cfg.StateMode, "valid_modes", []string{"memory", "redis"})
		os.Exit(1)
	}

	tokenSecret := []byte(cfg.TokenSecret)
	if len(tokenSecret) == 0 {
		tokenSecret = make([]byte, 32)
		if _, err := rand.Read(tokenSecret); err != nil {
			slog.Error("Failed to generate token secret", "error", err)
			os.Exit(1)
		}
		slog.Warn("Generated ephemeral token secret; in-flight signins will not survive a restart")
	}

	// Setup services
	tokenLedger := ledger.New(stateStore)
	engine := auth.NewEngine(webAuthn, directory, tokenLedger, tokenSecret)
	sessions := session.NewIssuer(stateStore)
	signinManager := signin.NewManager(stateStore, directory, engine, sessions, cfg.AdminFqdn)
	apiServer := api.NewServer(directory, sessions, engine, signinManager)

	if cfg.SeedFile != "" {
		if err := ApplySeed(context.Background(), cfg.SeedFile, directory, signinManager); err != nil {
			slog.Error("Failed to apply seed file", "path", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
	}

	// Setup routes
	mux := http.NewServeMux()
	apiServer.Routes(mux)

	// Apply middleware
	handler := api.LoggingMiddleware(api.CORSMiddleware(mux))

	// Create HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	fmt.Printf("Übergang auth server starting on :%s (rp id %s)\n", cfg.Port, cfg.RPID())

	if err := server.ListenAndServe(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
