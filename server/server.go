package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"EquiSaddles/chat"
	"EquiSaddles/config"
	"EquiSaddles/handlers"
	"EquiSaddles/kafka"
	"EquiSaddles/limiter"
	"EquiSaddles/metrics"
	custommiddleware "EquiSaddles/middleware"
	"EquiSaddles/models"
	"EquiSaddles/notify"
	"EquiSaddles/redis"
	"EquiSaddles/services"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Server struct {
	Echo     *echo.Echo
	DB       *gorm.DB
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry

	Relay                *chat.Relay
	Notifier             *notify.Notifier
	AuthService          *services.AuthService
	AuthHandler          *handlers.AuthHandler
	ChatHandler          *handlers.ChatHandler
	ChatWebSocketHandler *handlers.ChatWebSocketHandler
	ContactHandler       *handlers.ContactHandler

	redis    *redis.RedisClient
	limiter  *limiter.Manager
	producer *kafka.Producer
	consumer *kafka.Consumer
}

// OpenDB opens the configured database.
func OpenDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewServer wires every component and takes ownership of db. Redis and
// Kafka are optional: without them presence tracking, rate limiting and the
// event stream are disabled.
func NewServer(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*Server, error) {
	if err := models.AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		DB:       db,
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
	}

	var presence *redis.RedisClient
	if cfg.Redis.Addr != "" {
		rc, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = rc
		s.limiter = limiter.NewManager(rc.Client, &limiter.FixedWindowStrategy{})
		presence = rc
	} else {
		logger.Warn("redis not configured, presence and rate limiting disabled")
	}

	relayOpts := []chat.Option{chat.WithMetrics(metrics.New(reg))}
	if cfg.Kafka.Enabled {
		if err := s.setupKafka(); err != nil {
			s.Close()
			return nil, err
		}
		relayOpts = append(relayOpts, chat.WithPublisher(s.producer))
	}

	store := services.NewGormSessionStore(db)
	registry := chat.NewRegistry()
	s.Notifier = notify.NewNotifier(cfg.Mail, cfg.Server.PublicURL, logger)
	s.Relay = chat.NewRelay(store, registry, s.Notifier, logger, relayOpts...)

	s.AuthService = services.NewAuthService(db, &cfg.Auth)
	oauthService := services.NewOAuthService(&cfg.Auth)
	s.AuthHandler = handlers.NewAuthHandler(s.AuthService, oauthService, cfg.Server.PublicURL, logger)
	s.ContactHandler = handlers.NewContactHandler(s.Notifier, logger)
	if presence != nil {
		s.ChatHandler = handlers.NewChatHandler(store, registry, presence, logger)
		s.ChatWebSocketHandler = handlers.NewChatWebSocketHandler(s.Relay, presence, cfg.Server.AllowOrigins, logger)
	} else {
		s.ChatHandler = handlers.NewChatHandler(store, registry, nil, logger)
		s.ChatWebSocketHandler = handlers.NewChatWebSocketHandler(s.Relay, nil, cfg.Server.AllowOrigins, logger)
	}

	// 初始化 Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(custommiddleware.RequestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     allowOrigins(cfg.Server.AllowOrigins),
		AllowMethods:     []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.PATCH},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		ExposeHeaders:    []string{echo.HeaderContentLength},
		MaxAge:           86400,
	}))
	s.Echo = e

	s.SetupRoutes(custommiddleware.AdminAuthMiddleware(s.AuthService))
	return s, nil
}

func allowOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (s *Server) setupKafka() error {
	cfg := &s.Config.Kafka
	saramaConfig, err := kafka.NewSaramaConfig(cfg)
	if err != nil {
		return err
	}
	s.producer, err = kafka.NewProducer(cfg.Brokers, saramaConfig, cfg.Topic, s.Logger)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	if cfg.ConsumeAudit {
		s.consumer, err = kafka.NewConsumer(cfg.Brokers, cfg.GroupID, []string{cfg.Topic},
			saramaConfig, kafka.NewAuditHandler(s.Logger), s.Logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka consumer: %w", err)
		}
	}
	return nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	if s.consumer != nil {
		go func() {
			if err := s.consumer.Start(ctx); err != nil {
				s.Logger.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", zap.String("addr", addr))
		if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Logger.Info("shutting down")
	return s.Echo.Shutdown(shutdownCtx)
}

// Close releases the broker, redis and database connections.
func (s *Server) Close() error {
	var errs []error
	if s.consumer != nil {
		errs = append(errs, s.consumer.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

func (s *Server) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"database": "ok"}
	healthy := true
	if sqlDB, err := s.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "unavailable"
		healthy = false
	}
	if s.redis != nil {
		status["redis"] = "ok"
		if err := s.redis.Client.Ping(ctx).Err(); err != nil {
			status["redis"] = "unavailable"
			healthy = false
		}
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}
