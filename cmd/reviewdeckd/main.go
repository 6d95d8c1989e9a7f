package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/reviewdeck/reviewdeck/internal/adapter/driven/github"
	sqliteadapter "github.com/reviewdeck/reviewdeck/internal/adapter/driven/sqlite"
	httphandler "github.com/reviewdeck/reviewdeck/internal/adapter/driving/http"
	"github.com/reviewdeck/reviewdeck/internal/application"
	"github.com/reviewdeck/reviewdeck/internal/config"
	"github.com/reviewdeck/reviewdeck/internal/logging"
)

// cachePruneInterval is how often expired file-content cache rows are removed.
const cachePruneInterval = 15 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on a missing token).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.GitHubToken == "" {
		return errors.New("REVIEWDECK_GITHUB_TOKEN is required")
	}

	logger, err := logging.Setup(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	defer func() {
		if closeErr := logging.CloseFile(); closeErr != nil {
			logger.Error("error closing log file", "error", closeErr)
		}
	}()

	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"review_log_dir", cfg.ReviewLogDir,
		"content_ttl", cfg.ContentTTL,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on the writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	draftStore, err := sqliteadapter.NewDraftRepo(db, cfg.ReviewLogDir)
	if err != nil {
		return err
	}
	contentCache := sqliteadapter.NewContentRepo(db, cfg.ContentTTL)
	ghClient := githubadapter.NewClient(cfg.GitHubToken)

	// 6. Resolve the authenticated login when not configured explicitly.
	login := cfg.GitHubLogin
	if login == "" {
		login, err = ghClient.ValidateToken(ctx, cfg.GitHubToken)
		if err != nil {
			return fmt.Errorf("validate github token: %w", err)
		}
	}
	slog.Info("github client created", "login", login)

	// 7. Wire application services.
	drafts := application.NewDraftService(draftStore, logger)
	sessions := application.NewSessionManager(ghClient, ghClient, drafts, logger)

	// 8. Background cache pruning.
	go func() {
		ticker := time.NewTicker(cachePruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if pruned, pruneErr := contentCache.Prune(ctx); pruneErr != nil {
					slog.Warn("content cache prune failed", "error", pruneErr)
				} else if pruned > 0 {
					slog.Debug("content cache pruned", "rows", pruned)
				}
			}
		}
	}()

	// 9. HTTP server.
	apiHandler := httphandler.NewHandler(ghClient, contentCache, sessions, login, logger)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("reviewdeck started", "listen_addr", cfg.ListenAddr)

	// 10. Wait for shutdown signal, then drain.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
