package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"barrio-alarm/internal/audit"
	"barrio-alarm/internal/cache"
	"barrio-alarm/internal/channels"
	"barrio-alarm/internal/commands"
	"barrio-alarm/internal/config"
	"barrio-alarm/internal/enrichment"
	"barrio-alarm/internal/gateway"
	"barrio-alarm/internal/orchestrator"
	"barrio-alarm/internal/store"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Service wires the emergency broadcast system: the webhook server, the
// member store, the audit sink and the outbound delivery channels.
type Service struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	groupStore  *store.GroupStore
	auditSink   *audit.Sink
	mqttSwitch  *channels.MQTTSwitch
	handler     *gateway.WebhookHandler
	httpServer  *http.Server
}

// NewService builds the full service graph.
func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	db, err := openDatabase(&cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	cipher, err := store.NewFieldCipher(os.Getenv(store.EncryptionKeyEnv), logger)
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, fmt.Errorf("failed to initialize field cipher: %w", err)
	}

	groupStore := store.NewGroupStore(db, cipher, store.DefaultPredicate, logger)
	auditSink := audit.NewSink(db, logger)
	messageCache := cache.NewMessageCache(cfg, redisClient, logger)
	enricher := enrichment.NewEnricher(groupStore, logger)

	messenger := channels.NewGatewayClient(&cfg.Gateway, logger)
	composer := channels.NewComposerClient(&cfg.Composer, logger)
	renderer := channels.NewRenderClient(&cfg.Render, cfg.Broadcast.TempDir, logger)
	speech := channels.NewTTSClient(&cfg.Speech, cfg.Broadcast.TempDir, logger)

	device := channels.NewChainController(logger)
	device.Add("cloud", channels.NewCloudSwitchClient(&cfg.Device, logger))

	var mqttSwitch *channels.MQTTSwitch
	if cfg.MQTT.Broker != "" {
		mqttSwitch, err = channels.NewMQTTSwitch(&cfg.MQTT, logger)
		if err != nil {
			// The cloud path still works without the local broker.
			logger.Warn("Local device broker unavailable", zap.Error(err))
		} else {
			device.Add("mqtt", mqttSwitch)
		}
	}

	orch := orchestrator.New(device, messenger, speech, composer, renderer,
		enricher, auditSink, cfg, logger)

	cmdTable := commands.NewTable(groupStore, enricher, logger)

	handler := gateway.NewWebhookHandler(messageCache, groupStore, cmdTable,
		messenger, orch, cfg, logger)
	router := gateway.NewRouter(logger)
	router.RegisterWebhookRoutes(handler)

	return &Service{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		groupStore:  groupStore,
		auditSink:   auditSink,
		mqttSwitch:  mqttSwitch,
		handler:     handler,
		httpServer: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}, nil
}

// Start creates the schema and serves the webhook until the context is
// cancelled or the server fails.
func (s *Service) Start(ctx context.Context) error {
	if err := s.groupStore.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := s.auditSink.EnsureSchema(ctx); err != nil {
		return err
	}

	s.logger.Info("Webhook server listening", zap.String("addr", s.config.HTTP.Addr))

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return fmt.Errorf("webhook server failed: %w", err)
	}
}

// Stop drains in-flight broadcasts and closes all connections.
func (s *Service) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Webhook server shutdown failed", zap.Error(err))
	}

	// A broadcast in progress finishes before connections close: an alarm
	// must never be cut off halfway.
	s.handler.Wait()

	if s.mqttSwitch != nil {
		s.mqttSwitch.Disconnect()
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis client", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}

	return nil
}

func openDatabase(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
