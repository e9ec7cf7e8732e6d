package app

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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/simp-lee/logger"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/simp-lee/hive/internal/config"
	gql "github.com/simp-lee/hive/internal/graphql"
	"github.com/simp-lee/hive/internal/middleware"
	"github.com/simp-lee/hive/internal/module/auth"
	"github.com/simp-lee/hive/internal/module/user"
)

const (
	defaultServerTimeout = 30 * time.Second
	shutdownTimeout      = 5 * time.Second
	codeKeyPrefix        = "hive:codes:"
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine          *gin.Engine
	db              *gorm.DB
	redis           *redis.Client
	tokens          *auth.TokenService
	logger          *logger.Logger
	shutdownTracing config.ShutdownFunc
	cfg             *config.Config
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler, timeout time.Duration) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      2 * timeout,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, database, tracing, the optional redis client, the
// auth and user modules, the GraphQL endpoint, middleware and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}

	ctx := context.Background()
	success := false

	// 1. Logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// 2. Database.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if !success {
			closeDB(db, log.Logger)
		}
	}()

	// 3. Schema and role seed, debug mode only.
	if cfg.Server.Mode == gin.DebugMode {
		if err := config.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("auto migration completed")
	}

	// 4. Tracing.
	shutdownTracing, err := config.SetupTracing(ctx, &cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if !success {
			_ = shutdownTracing(context.Background())
		}
	}()

	// 5. Redis, when enabled.
	rdb, err := config.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("setup redis: %w", err)
	}
	defer func() {
		if !success && rdb != nil {
			_ = rdb.Close()
		}
	}()

	// 6. Manual dependency injection: repository → service → handler.
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, config.Duration(cfg.Auth.TokenExpiry, 24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("setup tokens: %w", err)
	}
	defer func() {
		if !success {
			tokens.Close()
		}
	}()

	userRepo := user.NewUserRepository(db)
	userSvc := user.NewUserService(db, userRepo)
	limits := user.PageLimits{Default: cfg.Pagination.DefaultLimit, Max: cfg.Pagination.MaxLimit}

	authSvc := auth.NewService(db, userRepo, tokens, newCodeStore(rdb), newMailer(&cfg.Mail, log.Logger),
		log.Logger, auth.Config{
			Verification: codePolicy(cfg.Auth.EmailVerification, 30*time.Minute),
			Reset:        codePolicy(cfg.Auth.PasswordReset, 5*time.Minute),
		})

	deps := &RouteDeps{
		Modules: []Module{
			auth.NewModule(auth.NewHandler(authSvc)),
			user.NewModule(user.NewUserHandler(userSvc, limits)),
		},
		DB:    db,
		Redis: rdb,
	}

	if cfg.GraphQL.Enabled {
		schema, err := gql.NewSchema(gql.NewResolver(authSvc, userSvc, limits))
		if err != nil {
			return nil, fmt.Errorf("build graphql schema: %w", err)
		}
		deps.GraphQL = gql.NewHandler(schema, log.Logger)
		deps.GraphQLPath = cfg.GraphQL.Path
	}

	// 7. Gin engine with custom middleware (not gin.Default()).
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	// In release mode, when no allowlist is configured, default to deny cross-origin requests.
	corsConfig := resolveCORSConfig(cfg.Server.Mode, &cfg.Server.CORS)

	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestID(false),
		middleware.Tracing(otel.GetTracerProvider(), otel.GetTextMapPropagator()),
		middleware.Logger(log.Logger),
		middleware.CORS(corsConfig),
		middleware.Authenticate(tokens, userRepo),
	)

	// 8. Routes.
	if err := RegisterRoutes(engine, deps); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:          engine,
		db:              db,
		redis:           rdb,
		tokens:          tokens,
		logger:          log,
		shutdownTracing: shutdownTracing,
		cfg:             cfg,
	}, nil
}

func newCodeStore(rdb *redis.Client) auth.CodeStore {
	if rdb == nil {
		return auth.NewMemoryCodeStore(nil)
	}
	return auth.NewRedisCodeStore(rdb, codeKeyPrefix)
}

func newMailer(cfg *config.MailConfig, log *slog.Logger) auth.Mailer {
	if cfg.Provider == "sendgrid" {
		return auth.NewSendGridMailer(cfg.SendGridAPIKey, cfg.FromAddress, cfg.FromName, "")
	}
	return auth.NewLogMailer(log)
}

func codePolicy(cfg config.CodeConfig, defTTL time.Duration) auth.CodePolicy {
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = config.DefaultMaxAttempts
	}
	return auth.CodePolicy{TTL: config.Duration(cfg.CodeTTL, defTTL), MaxAttempts: attempts}
}

func resolveCORSConfig(mode string, cfg *config.CORSConfig) middleware.CORSConfig {
	corsConfig := middleware.DefaultCORSConfig()
	if cfg == nil {
		cfg = &config.CORSConfig{}
	}

	switch {
	case len(cfg.AllowOrigins) > 0:
		corsConfig.AllowOrigins = cfg.AllowOrigins
	case mode == gin.ReleaseMode:
		corsConfig.AllowOrigins = nil
	}
	if len(cfg.AllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.AllowMethods
	}
	if len(cfg.AllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.AllowHeaders
	}
	corsConfig.AllowCredentials = cfg.AllowCredentials
	corsConfig.MaxAge = config.Duration(cfg.MaxAge, corsConfig.MaxAge)

	return corsConfig
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

func closeDB(db *gorm.DB, log *slog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error("database close error", slog.Any("error", err))
		return
	}
	log.Info("database connection closed")
}

func (a *App) log() *slog.Logger {
	if a.logger != nil {
		return a.logger.Logger
	}
	return slog.Default()
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// It shuts the server down gracefully within five seconds, then flushes
// traces and closes redis, the database and the logger.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := a.log()
	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine, config.Duration(a.cfg.Server.Timeout, defaultServerTimeout))

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if runErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
	}

	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(shutdownCtx); err != nil {
			log.Error("tracing shutdown error", slog.Any("error", err))
		}
	}
	if a.tokens != nil {
		a.tokens.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Error("redis close error", slog.Any("error", err))
		}
	}
	if a.db != nil {
		closeDB(a.db, log)
	}

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}
