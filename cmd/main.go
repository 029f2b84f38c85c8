package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vereinskasse/internal/clients"
	"vereinskasse/internal/config"
	"vereinskasse/internal/metrics"
	"vereinskasse/internal/repository"
	"vereinskasse/internal/service"
	"vereinskasse/internal/transport/auth"
	"vereinskasse/internal/transport/rest"
	"vereinskasse/internal/transport/websocket"
	"vereinskasse/pkg/database/postgres"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

const exportRetention = 30 * time.Minute

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})))

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system env or defaults")
	}

	// top-level context, cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Load()

	loc, err := cfg.Location()
	if err != nil {
		fatal("timezone init error", err)
	}

	db := mustInitPostgres(ctx, cfg.Postgres)
	defer postgres.Close(db)

	redisClient := mustInitRedis(ctx, cfg.Redis)
	defer redisClient.Close()

	m := metrics.New()

	wsHub := websocket.NewHub(cfg.AllowedOrigins...)
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	var (
		exportStore  service.ExportStore
		localStorage *clients.LocalStorage
	)
	switch cfg.ExportStorage {
	case "s3":
		exportStore = mustInitS3(ctx, cfg.S3)
	default:
		localStorage, err = clients.NewLocalStorage(cfg.ExportDir, cfg.FilesPublicPrefix, cfg.ExternalURL)
		if err != nil {
			fatal("storage init error", err)
		}
		exportStore = localStorage
	}

	mailer := clients.NewMailClient(clients.MailConfig{
		GatewayURL: cfg.Mail.GatewayURL,
		Token:      cfg.Mail.Token,
		From:       cfg.Mail.From,
		Timeout:    time.Duration(cfg.Mail.Timeout) * time.Second,
	})

	reminderRepo := repository.NewReminderRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	tokenRepo := repository.NewAccessTokenRepository(db)

	reminderSvc := service.NewReminderService(
		reminderRepo,
		memberRepo,
		mailer,
		redisClient,
		wsClient,
		m,
		service.ReminderServiceConfig{
			Location:    loc,
			SendLockTTL: time.Duration(cfg.SendLockTTL) * time.Second,
			MailFrom:    cfg.Mail.From,
		},
	)
	exportSvc := service.NewExportService(redisClient)
	overviewExportSvc := service.NewOverviewExportService(exportSvc, reminderSvc, exportStore, wsClient, m, cfg.ExportPrefix, loc)

	tokenMiddleware := auth.TokenMiddleware(tokenRepo)

	handler := rest.NewHandler(reminderSvc, overviewExportSvc, exportSvc, cfg.ExportPrefix, loc)
	router := handler.InitRouterWithAuth(tokenMiddleware)

	// /files, /health and /metrics stay public; everything else goes
	// through the token middleware
	root := chi.NewRouter()

	root.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			rest.ErrorUnavailable(w, "database unavailable")
			return
		}
		if err := redisClient.Ping(pingCtx); err != nil {
			rest.ErrorUnavailable(w, "redis unavailable")
			return
		}
		rest.Success(w, "ok", nil)
	})

	root.Handle("/metrics", m.Handler())

	if localStorage != nil {
		root.Get(cfg.FilesPublicPrefix+"/{file}", func(w http.ResponseWriter, r *http.Request) {
			path, name, err := localStorage.Open(chi.URLParam(r, "file"))
			if err != nil {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
			http.ServeFile(w, r, path)
		})
	}

	// upgrades may carry ?token= since browsers cannot set headers on
	// them; auth.QueryToken keeps it out of the request log
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.GetUserID(r.Context())
		if err != nil {
			rest.ErrorUnauthorized(w, "Nicht angemeldet")
			return
		}

		slog.Info("websocket connected", "user_id", userID)
		wsHub.HandleWebSocket(w, r, userID)
	})

	root.Mount("/", router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withCORS(root, cfg.AllowedOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Port, "timezone", loc.String(), "export_storage", cfg.ExportStorage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	if localStorage != nil {
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					removed, err := localStorage.CleanupOlderThan(exportRetention)
					if err != nil {
						slog.Warn("storage cleanup error", "error", err)
						continue
					}
					if removed > 0 {
						slog.Info("expired exports removed", "count", removed)
					}
				}
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			fatal("HTTP server error", err)
		}
	case sig := <-stop:
		slog.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}

		// exports still write status to redis and files to storage
		if err := overviewExportSvc.Wait(shutdownCtx); err != nil {
			slog.Warn("exports still running at shutdown", "error", err)
		}

		// stops the websocket hub and the cleanup ticker
		cancel()

		postgres.Close(db)
		redisClient.Close()

		slog.Info("shutdown complete")
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func mustInitPostgres(ctx context.Context, cfg config.PostgresConfig) *sql.DB {
	db, err := postgres.NewPostgresConnection(ctx, postgres.ConnectionInfo{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Username:     cfg.User,
		DBName:       cfg.DBName,
		SSLMode:      cfg.SSLMode,
		Password:     cfg.Password,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	if err != nil {
		fatal("postgres init error", err)
	}
	return db
}

func mustInitRedis(ctx context.Context, cfg config.RedisConfig) *clients.RedisClient {
	client, err := clients.NewRedisClient(ctx, clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		Prefix:      cfg.Prefix,
	})
	if err != nil {
		fatal("redis init error", err)
	}
	return client
}

func mustInitS3(ctx context.Context, cfg config.S3Config) *clients.S3Client {
	client, err := clients.NewS3Client(ctx, clients.S3Config{
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Bucket:          cfg.Bucket,
		UseSSL:          cfg.UseSSL,
		Region:          cfg.Region,
		Prefix:          cfg.Prefix,
		URLTTL:          time.Duration(cfg.URLTTL) * time.Second,
	})
	if err != nil {
		fatal("s3 init error", err)
	}
	if err := client.EnsureBucket(ctx, cfg.Region); err != nil {
		fatal("s3 bucket init error", err)
	}
	return client
}

func withCORS(next http.Handler, allowed []string) http.Handler {
	allow := func(origin string) bool {
		if len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allow(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
