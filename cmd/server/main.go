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
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"ali/internal/auth/revocation"
	authservice "ali/internal/auth/service"
	"ali/internal/auth/token"
	"ali/internal/chat"
	chatservice "ali/internal/chat/service"
	documentmetrics "ali/internal/document/metrics"
	documentports "ali/internal/document/ports"
	documentservice "ali/internal/document/service"
	documentstore "ali/internal/document/store"
	"ali/internal/maintenance"
	messagemetrics "ali/internal/message/metrics"
	messageports "ali/internal/message/ports"
	messageservice "ali/internal/message/service"
	messagestore "ali/internal/message/store"
	"ali/internal/platform/config"
	"ali/internal/platform/httpserver"
	"ali/internal/platform/logger"
	platformredis "ali/internal/platform/redis"
	sessionports "ali/internal/session/ports"
	sessionservice "ali/internal/session/service"
	sessionstore "ali/internal/session/store"
	httptransport "ali/internal/transport/http"
	userports "ali/internal/user/ports"
	userservice "ali/internal/user/service"
	userstore "ali/internal/user/store"
	"ali/pkg/platform/audit"
	auditmemory "ali/pkg/platform/audit/store/memory"
	auditpostgres "ali/pkg/platform/audit/store/postgres"
	auditworker "ali/pkg/platform/audit/worker"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies and runs the HTTP server plus the maintenance
// worker until a termination signal arrives. Business logic lives in the
// internal service packages.
func main() {
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.FromEnv(), log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// stores groups the persistence ports so wiring is the same for the
// in-memory and postgres backends.
type stores struct {
	users     userports.Store
	sessions  sessionports.Store
	messages  messageports.Store
	documents documentports.Store
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, db, cleanup, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	revocations, err := openRevocationList(ctx, cfg, log)
	if err != nil {
		return err
	}

	auditStore, err := openAuditStore(ctx, db)
	if err != nil {
		return err
	}
	auditEvents := make(chan audit.Event, 256)
	auditPublisher := audit.NewChannelPublisher(auditEvents, log)

	users, err := userservice.New(st.users,
		userservice.WithLogger(log),
		userservice.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return err
	}
	sessions, err := sessionservice.New(st.sessions, st.users,
		sessionservice.WithLogger(log),
		sessionservice.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return err
	}
	messages, err := messageservice.New(st.messages, st.sessions, st.users,
		messageservice.WithLogger(log),
		messageservice.WithAuditPublisher(auditPublisher),
		messageservice.WithMetrics(messagemetrics.New()),
	)
	if err != nil {
		return err
	}
	documents, err := documentservice.New(st.documents, st.users,
		documentservice.WithLogger(log),
		documentservice.WithAuditPublisher(auditPublisher),
		documentservice.WithMetrics(documentmetrics.New()),
	)
	if err != nil {
		return err
	}

	tokens := token.New(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	auth, err := authservice.New(users, tokens, revocations,
		authservice.WithLogger(log),
		authservice.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return err
	}

	completer := chat.NewHTTPClient(cfg.Chat.BackendURL, cfg.Chat.APIKey,
		chat.WithHTTPClient(&http.Client{Timeout: cfg.Chat.Timeout}),
		chat.WithClientLogger(log),
	)
	chatSvc, err := chatservice.New(messages, completer, chatservice.WithLogger(log))
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Services{
		Auth:      auth,
		Users:     users,
		Sessions:  sessions,
		Messages:  messages,
		Chat:      chatSvc,
		Documents: documents,
	}, log)

	srv := httpserver.New(cfg.Addr, router)

	worker := maintenance.New(users, sessions, messages, documents,
		maintenance.WithInterval(cfg.Maintenance.Interval),
		maintenance.WithRetention(
			cfg.Maintenance.UserInactiveDays,
			cfg.Maintenance.SessionInactiveHours,
			cfg.Maintenance.MessageRetentionDays,
		),
		maintenance.WithLogger(log),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("maintenance worker: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := auditworker.NewWorker(auditStore, auditEvents, log).Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("audit worker: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStores connects to postgres when ALI_DATABASE_URL is set and falls
// back to the in-memory stores otherwise. The returned *sql.DB is nil when
// running on memory stores.
func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, *sql.DB, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("no database configured, using in-memory stores")
		return stores{
			users:     userstore.NewMemory(),
			sessions:  sessionstore.NewMemory(),
			messages:  messagestore.NewMemory(),
			documents: documentstore.NewMemory(),
		}, nil, func() {}, nil
	}

	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, nil, nil, err
	}

	userStore := userstore.NewPostgres(db)
	sessionStore := sessionstore.NewPostgres(db)
	messageStore := messagestore.NewPostgres(db)
	documentStore := documentstore.NewPostgres(db)

	for _, ensure := range []func(context.Context) error{
		userStore.EnsureSchema,
		sessionStore.EnsureSchema,
		messageStore.EnsureSchema,
		documentStore.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			db.Close()
			return stores{}, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	log.Info("connected to postgres")
	return stores{
		users:     userStore,
		sessions:  sessionStore,
		messages:  messageStore,
		documents: documentStore,
	}, db, func() { db.Close() }, nil
}

// openAuditStore persists audit events next to the domain data when postgres
// is configured.
func openAuditStore(ctx context.Context, db *sql.DB) (audit.Store, error) {
	if db == nil {
		return auditmemory.NewInMemoryStore(), nil
	}
	store := auditpostgres.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}
	return store, nil
}

func openDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// openRevocationList uses Redis for token revocation when configured and the
// in-memory list otherwise.
func openRevocationList(ctx context.Context, cfg config.Config, log *slog.Logger) (revocation.List, error) {
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		log.Warn("no redis configured, using in-memory token revocation")
		return revocation.NewMemory(), nil
	}
	log.Info("connected to redis")
	return revocation.NewRedisTRL(client.Client), nil
}
