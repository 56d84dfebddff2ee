package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"media-gateway/config"
	"media-gateway/internal/handler"
	"media-gateway/internal/ports"
	"media-gateway/internal/repository"
	"media-gateway/internal/security"
	"media-gateway/internal/service"
	"media-gateway/internal/util"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", config.DefaultConfigPath, "path of the YAML configuration")
	logLevel := pflag.String("log-level", "", "overrides logging.level")
	hashPassword := pflag.String("hash-password", "", "prints the salted SHA-256 form of a password and exits")
	pflag.Parse()

	if *hashPassword != "" {
		hashed, err := security.HashPassword('5', *hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hashed)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("could not load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := util.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ac, err := security.NewAccessControl(&cfg.Auth, logger)
	if err != nil {
		fatal(logger, "could not set up access control", err)
	}

	auditStore, closeAudit, err := setupAudit(ctx, &cfg.Audit)
	if err != nil {
		fatal(logger, "could not set up audit store", err)
	}
	defer func() {
		if err := closeAudit.Close(); err != nil {
			logger.Warn("could not close audit store", slog.Any("error", err))
		}
	}()

	var archiver ports.IndexArchiver
	if cfg.S3.Enabled {
		s3Service, err := service.NewS3Service(ctx, &cfg.S3, logger)
		if err != nil {
			fatal(logger, "could not set up index archive", err)
		}
		archiver = s3Service
	}

	mediaService, err := service.NewMediaService(&cfg.Storage, ac.AclDB(), auditStore, archiver, cfg.Audit.Timeout, logger)
	if err != nil {
		fatal(logger, "could not set up media zones", err)
	}
	if err := mediaService.Init(ctx); err != nil {
		fatal(logger, "could not load media zones", err)
	}

	srv, router := config.SetupServer(&cfg.Server)
	router.Handle("/metrics", promhttp.Handler())

	mediaHandler := handler.NewMediaHandler(mediaService, ac, &cfg.Server, logger)
	setupMediaRoutes(router, mediaHandler, cfg.Server.Prefix)

	runServer(ctx, srv, logger)

	closeCtx, closeCancel := context.WithTimeout(ctx, 10*time.Second)
	defer closeCancel()
	if err := mediaService.Close(closeCtx); err != nil {
		logger.Warn("could not close media zones", slog.Any("error", err))
	}
}

func setupMediaRoutes(r chi.Router, h *handler.MediaHandler, prefix string) {
	if prefix == "" || prefix == "/" {
		h.Routes(r)
		return
	}
	r.Route(prefix, h.Routes)
}

// setupAudit : the audit store selected by driver, nil for "none".
func setupAudit(ctx context.Context, cfg *config.AuditConfig) (ports.AuditStore, io.Closer, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := config.SetupDatabase(cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewPostgresAuditRepository(db)
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := repo.EnsureSchema(schemaCtx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, db, nil
	case "redis":
		client, err := config.SetupRedis(&cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisAuditRepository(client, cfg.Redis.Stream), client, nil
	default:
		return nil, io.NopCloser(nil), nil
	}
}

func fatal(logger *slog.Logger, message string, err error) {
	logger.Error(message, slog.Any("error", err))
	os.Exit(1)
}

func runServer(ctx context.Context, server *http.Server, logger *slog.Logger) {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening on " + server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
		}
	case sig := <-signalChannel:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutDownCtx, shutDownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutDownCancel()

	if err := server.Shutdown(shutDownCtx); err != nil {
		logger.Error("could not stop server", slog.Any("error", err))
	} else {
		logger.Info("server stopped")
	}
}
