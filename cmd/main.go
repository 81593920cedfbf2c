package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/config"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/consumer"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/handler"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/repository"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/service"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/database"
	pkglog "github.com/weiawesome/wes-io-live/conversation-service/pkg/log"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/pubsub"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "conversation-service",
	})
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Open the store and build repositories
	repos, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str(pkglog.FieldDriver, cfg.Store.Driver).Msg("failed to open store")
	}
	logger.Info().Str(pkglog.FieldDriver, repos.Driver).Msg("store ready")

	// 4. Event publisher
	publisher, err := pubsub.NewPublisher(pubsub.Config{
		Driver: cfg.Events.Driver,
		Redis:  cfg.Redis,
		Kafka: pubsub.KafkaConfig{
			Brokers:    cfg.Kafka.Brokers,
			Partitions: cfg.Kafka.Partitions,
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Events.Driver).Msg("failed to create event publisher")
	}

	svc := service.NewConversationService(repos, publisher)

	// 5. Kafka message consumer
	var kafkaConsumer consumer.MessageEventConsumer
	if cfg.Kafka.Brokers != "" {
		kc, err := consumer.NewConfluentConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, svc)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka consumer, message events disabled")
		} else if err := kc.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to start kafka consumer")
		} else {
			kafkaConsumer = kc
		}
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not configured; message consumer disabled")
	}

	// 6. Setup Gin router + HTTP server
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	if cfg.Metrics.Enabled {
		r.Use(metrics.GinMiddleware())
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store": repos.Driver})
	})
	handler.NewHandler(svc, handler.PageLimits{
		DefaultPageSize: cfg.Pagination.DefaultPageSize,
		MaxPageSize:     cfg.Pagination.MaxPageSize,
	}).RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info().Str("addr", addr).Str(pkglog.FieldDriver, repos.Driver).Str("events", cfg.Events.Driver).Msg("conversation-service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// 7. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutdown signal received")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		// stop the consume loop, then wait for the in-flight message
		cancel()
		if kafkaConsumer != nil {
			if err := kafkaConsumer.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing kafka consumer")
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server forced to shutdown")
		}

		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing event publisher")
		}
		closeStore()
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("conversation-service stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}

// openStore connects the configured store driver and returns its
// repositories with a function releasing the connection.
func openStore(ctx context.Context, cfg *config.Config) (*repository.Repositories, func(), error) {
	logger := pkglog.L()

	if cfg.Store.IsRelational() {
		db, err := database.New(&database.Config{
			Driver:          cfg.Store.Driver,
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			DBName:          cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			FilePath:        cfg.Database.FilePath,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			LogLevel:        cfg.Database.LogLevel,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := database.AutoMigrate(db, repository.AutoMigrateModels()...); err != nil {
			_ = database.Close(db)
			return nil, nil, fmt.Errorf("failed to auto-migrate: %w", err)
		}
		logger.Info().Msg("database migration completed")

		closeFn := func() {
			if err := database.Close(db); err != nil {
				logger.Warn().Err(err).Msg("error closing database")
			}
		}
		return repository.NewGormRepositories(db, cfg.Store.Driver), closeFn, nil
	}

	client, err := database.NewMongo(ctx, &database.MongoConfig{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
		MaxPoolSize:    cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		return nil, nil, err
	}

	repos, err := repository.NewMongoRepositories(ctx, client.Database(cfg.Mongo.Database), repository.CollectionNames{
		Rooms:         cfg.Mongo.RoomsCollection,
		Subscriptions: cfg.Mongo.SubscriptionsCollection,
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	logger.Info().Str(pkglog.FieldCollection, cfg.Mongo.RoomsCollection).Msg("mongo indexes ensured")

	closeFn := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("error disconnecting mongo")
		}
	}
	return repos, closeFn, nil
}
