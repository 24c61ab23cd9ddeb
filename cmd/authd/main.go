package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tech-arch1tect/authkit/config"
	"github.com/tech-arch1tect/authkit/database"
	"github.com/tech-arch1tect/authkit/middleware/accesstoken"
	"github.com/tech-arch1tect/authkit/redis"
	"github.com/tech-arch1tect/authkit/server"
	"github.com/tech-arch1tect/authkit/services/auth"
	"github.com/tech-arch1tect/authkit/services/events"
	"github.com/tech-arch1tect/authkit/services/jwt"
	"github.com/tech-arch1tect/authkit/services/logging"
	"github.com/tech-arch1tect/authkit/services/mail"
	"github.com/tech-arch1tect/authkit/services/password"
	"github.com/tech-arch1tect/authkit/services/refreshtoken"
	"github.com/tech-arch1tect/authkit/services/revocation"
	"github.com/tech-arch1tect/authkit/services/token"
	"github.com/tech-arch1tect/authkit/services/user"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("authd: %v", err)
	}
}

func run() error {
	var cfg config.Config
	if err := config.LoadConfig(&cfg); err != nil {
		return err
	}

	logger, err := logging.NewService(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.Connect(cfg.Database,
		&user.User{}, &user.Role{}, &user.UserRole{},
		&refreshtoken.RefreshTokenRecord{},
		&revocation.RevokedToken{},
		&auth.EmailVerificationToken{})
	if err != nil {
		return err
	}

	client, err := redis.Connect(cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	users := user.NewStore(db, logger)
	if _, err := users.EnsureRole(context.Background(), cfg.Auth.DefaultRoleName); err != nil {
		return err
	}

	codec := jwt.NewService(&cfg.JWT, logger)
	registry := refreshtoken.NewService(db, client, codec, &cfg, logger)
	revoc := revocation.NewService(client, db, &cfg, logger)
	hasher := password.NewService(&cfg.Auth, logger)
	tokens := token.NewService(codec, registry, users, logger)

	var mailer auth.Mailer
	if cfg.Mail.Enabled {
		mailSvc, err := mail.NewService(&cfg.Mail, logger)
		if err != nil {
			return err
		}
		mailer = mailSvc
	}

	dispatcher := events.NewDispatcher(256, logger)
	defer dispatcher.Close()

	authSvc := auth.NewService(db, users, hasher, codec, registry, revoc, dispatcher, mailer, &cfg, logger)

	// restore the cache tier after a redis restart
	if err := revoc.WarmFromDatabase(context.Background()); err != nil {
		logger.Error("failed to warm revocation cache", zap.Error(err))
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	revoc.StartCleanupWorker(workerCtx, cfg.Revocation.CleanupPeriod)
	if cfg.RefreshToken.CleanupInterval > 0 {
		registry.StartCleanupWorker(workerCtx, cfg.RefreshToken.CleanupInterval)
	}

	srv := server.New(&cfg, logger)
	handler := server.NewAuthHandler(authSvc, tokens, logger)
	handler.RegisterRoutes(srv.Group("/auth"), accesstoken.Require(codec, revoc))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
