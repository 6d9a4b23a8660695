package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	httpctx "github.com/keyrelay/migration-server/internal/api/http/context"
	"github.com/keyrelay/migration-server/internal/api/http/handler"
	"github.com/keyrelay/migration-server/internal/api/http/middleware"
	"github.com/keyrelay/migration-server/internal/api/http/router"
	httpServer "github.com/keyrelay/migration-server/internal/api/http/server"
	"github.com/keyrelay/migration-server/internal/config"
	"github.com/keyrelay/migration-server/internal/logger"
	"github.com/keyrelay/migration-server/internal/model"
	"github.com/keyrelay/migration-server/internal/rate"
	"github.com/keyrelay/migration-server/internal/repository/postgres"
	"github.com/keyrelay/migration-server/internal/server"
	"github.com/keyrelay/migration-server/internal/service"
	"github.com/keyrelay/migration-server/internal/signature"
	storage "github.com/keyrelay/migration-server/internal/storage/minio"
	"github.com/keyrelay/migration-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

const sweepInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	db, err := postgres.NewConection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	sessionRepo := postgres.NewSessionRepository(db)
	deviceRepo := postgres.NewDeviceRepository(db)
	tokenManager := token.NewJWT(cfg.JWT.Secret)

	minioClient, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatal("failed to create minio client", "error", err)
	}
	storageClient, err := storage.NewClient(ctx, minioClient, cfg.Storage.Bucket)
	if err != nil {
		logger.Fatal("failed to initialize storage client", "error", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	attemptLimiter := rate.New(redisClient, model.AttemptWindow)

	verifier := signature.NewEd25519Verifier()
	authorizer := service.NewAuthorizer(sessionRepo, verifier, attemptLimiter, logger)
	legacyAdapter := service.NewLegacyAdapter(sessionRepo, deviceRepo, logger)
	migrationService := service.NewMigration(sessionRepo, deviceRepo, storageClient, verifier, authorizer, legacyAdapter, logger)
	deviceService := service.NewDevice(deviceRepo, logger)

	sweeper := service.NewSweeper(sessionRepo, storageClient, sweepInterval, logger)

	ctxMgr := httpctx.NewManager()

	srv := registerHTTPServer(logger, migrationService, deviceService, tokenManager, ctxMgr, fmt.Sprintf(":%s", cfg.HTTP.Port))

	var sl model.SecurityLayer

	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		err := s.Start(sl)
		if err != nil {
			logger.Error("failed to start server", "error", err)
		}
	}(srv)

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", srv.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}

func registerHTTPServer(
	logger *logger.Logger,
	migrationService *service.Migration,
	deviceService *service.Device,
	tokenManager model.TokenManager,
	ctxMgr model.ContextManager,
	addr string,
) *httpServer.HTTPServer {
	h := router.New(router.Config{
		Migration:    handler.NewMigration(migrationService, ctxMgr, logger),
		Device:       handler.NewDevice(deviceService, ctxMgr, logger),
		Authenticate: middleware.NewAuthenticate(tokenManager, ctxMgr, logger),
		Logging:      middleware.NewLogging(logger),
	})

	return httpServer.NewHTTPServer(h, addr)
}
