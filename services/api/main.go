package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/chat"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/config"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/feed"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/handler"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/logger"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/middleware"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/notify"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/push"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/repository"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/startup"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/ws"
	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-process feed (no external services required)")
	flag.Parse()

	logger.Info("starting support chat API")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	profileRepo := repository.NewProfileRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)

	// In -dev mode everything stays in-process: no Redis, no Web Push.
	var changeFeed feed.Feed
	var pushStore *push.Store
	var pushSender *push.Sender
	vapidPublicKey := ""
	if *dev {
		changeFeed = feed.NewMemory()
	} else {
		rdb := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second)
		defer rdb.Close()
		logger.Info("redis connected")
		changeFeed = feed.NewRedis(rdb)

		keys, err := push.EnsureVAPIDKeys(cfg.VAPIDKeysFile)
		if err != nil {
			logger.Errorf("VAPID keys: %v (push disabled, subscriptions still collected)", err)
			keys = &push.VAPIDKeys{}
		}
		vapidPublicKey = keys.PublicKey
		pushStore = push.NewStore(rdb)
		pushSender = push.NewSender(pushStore, cfg.PushSubject, keys.PublicKey, keys.PrivateKey)
	}

	limiter := notify.NewKeyedLimiter(cfg.NotifyWindow())
	var pusher notify.Pusher
	if pushSender != nil && pushSender.Enabled() {
		pusher = pushSender
	}
	dispatcher := notify.NewDispatcher(cfg.Notify.WebhookURL, limiter, profileRepo, pusher)

	controller := chat.NewController(sessionRepo, msgRepo, changeFeed, dispatcher)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(controller, changeFeed, cfg.MaxWSConnections)
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	sessionH := handler.NewSessionHandler(controller)
	adminH := handler.NewAdminHandler(controller, sessionRepo)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	configH := handler.NewConfigHandler(vapidPublicKey)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Do not compress WebSocket upgrades: a wrapped ResponseWriter loses
	// http.Hijacker and the upgrade fails with 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/config/push", configH.GetPushConfig)

	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(profileRepo))

		r.Get("/api/chat/session", sessionH.GetLatest)
		r.Post("/api/chat/session", sessionH.Start)
		r.Get("/api/chat/sessions/{id}/messages", sessionH.ListMessages)
		r.Post("/api/chat/sessions/{id}/messages", sessionH.SendMessage)
		r.Post("/api/chat/sessions/{id}/active", sessionH.MarkActive)

		if pushStore != nil {
			pushH := handler.NewPushHandler(pushStore)
			r.Post("/api/push/subscribe", pushH.Subscribe)
			r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		} else {
			unavailable := func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"push not configured"}`))
			}
			r.Post("/api/push/subscribe", unavailable)
			r.Delete("/api/push/subscribe", unavailable)
		}

		r.Get("/ws", wsH.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/api/admin/chat/sessions", adminH.ListSessions)
			r.Post("/api/admin/chat/sessions/{id}/read", adminH.MarkRead)
			r.Post("/api/admin/chat/sessions/{id}/close", adminH.Close)
		})
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		logger.Errorf("list migrations: %v", err)
		os.Exit(1)
	}
	sort.Strings(entries)
	for _, name := range entries {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "frog"
		password = "frog_secret"
		database = "frog_members"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
