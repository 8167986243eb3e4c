package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/coursetrack/internal/api/http"
	"github.com/mind-engage/coursetrack/internal/auth"
	"github.com/mind-engage/coursetrack/internal/cache"
	"github.com/mind-engage/coursetrack/internal/catalog"
	"github.com/mind-engage/coursetrack/internal/certificate"
	"github.com/mind-engage/coursetrack/internal/config"
	"github.com/mind-engage/coursetrack/internal/db"
	"github.com/mind-engage/coursetrack/internal/discussion"
	"github.com/mind-engage/coursetrack/internal/eventlog"
	"github.com/mind-engage/coursetrack/internal/logger"
	"github.com/mind-engage/coursetrack/internal/progress"
	"github.com/mind-engage/coursetrack/internal/storage"
)

func main() {
	cfg := config.FromEnv()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatal("db open failed", "driver", cfg.DBDriver, "error", err)
	}
	defer dbh.Close()

	// --- Cache (optional) ---
	var (
		certCache cache.Cache = cache.Noop{}
		ready     []api.Pinger
	)
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, log, cfg.RedisAddr, "coursetrack:")
		if err != nil {
			log.Warn("redis unavailable, certificate cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer rc.Close()
			certCache = rc
			ready = append(ready, rc)
		}
	}

	// --- Stores and services ---
	events := eventlog.NewRepo(dbh, string(cfg.Mode))
	courses := catalog.NewSQLStore(dbh)
	certs := certificate.NewSQLStore(dbh)
	issuer := certificate.NewIssuer(certs, events, log)

	engine := progress.NewEngine(courses, progress.NewSQLStore(dbh), issuer, events, log)
	engine.MaxRetries = cfg.ProgressMaxRetries

	users := auth.NewUserStore(dbh)
	tokens := auth.NewService(cfg.AuthSecret, cfg.JWTTTL)
	accounts := auth.NewAccounts(users, tokens, auth.LockoutPolicy{
		MaxAttempts: cfg.LockoutMaxAttempts,
		LockFor:     cfg.LockoutDuration,
	}, log)
	if err := accounts.Bootstrap(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatal("admin bootstrap failed", "error", err)
	}

	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatal("blob store", "path", cfg.BlobBasePath, "error", err)
	}

	if cfg.Production() && cfg.AuthSecret == config.DevSecret {
		log.Warn("AUTH_HMAC_SECRET is the development default")
	}

	h := api.NewRouter(api.Services{
		Log:          log,
		DB:           dbh,
		Tokens:       tokens,
		Users:        users,
		Accounts:     accounts,
		Catalog:      courses,
		Engine:       engine,
		Certificates: certs,
		Verifier:     certificate.NewVerifier(certs, certCache, cfg.CertCacheTTL, log),
		Boards:       discussion.NewBoards(discussion.NewSQLStore(dbh), courses),
		Blobs:        blobs,
		Events:       events,
		Ready:        ready,
		CORSOrigins:  cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("stopped")
}
