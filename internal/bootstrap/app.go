package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mama165/sdk-go/logs"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"chatroom-backend/internal/app"
	"chatroom-backend/internal/cache"
	"chatroom-backend/internal/config"
	"chatroom-backend/internal/model"
	mysqlClient "chatroom-backend/internal/platform/mysql"
	rabbitmqClient "chatroom-backend/internal/platform/rabbitmq"
	redisClient "chatroom-backend/internal/platform/redis"
	"chatroom-backend/internal/realtime"
	"chatroom-backend/internal/repository"
	"chatroom-backend/internal/worker"
)

type App struct {
	Config         *config.Config
	Log            *slog.Logger
	MySQL          *gorm.DB
	Redis          *redis.Client
	MQConn         *amqp.Connection
	RelayWorker    *worker.EventRelayWorker
	Hub            *realtime.Hub
	MessageRepo    *repository.MessageRepository
	MessageService *app.MessageService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.Log.Level)

	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.MySQL.PoolSize)
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.Message{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}
	a.Log.Info("connected to mysql", "host", cfg.MySQL.Host, "db", cfg.MySQL.DB, "pool_size", cfg.MySQL.PoolSize)

	a.Hub = realtime.NewHub(a.Log.With("component", "hub"), realtime.Options{
		MaxMessageSize: int64(cfg.Socket.MaxMessageSize),
		SendBuffer:     cfg.Socket.SendBuffer,
	})
	go a.Hub.Run()

	var historyCache app.HistoryCache
	if cfg.Redis.Enabled {
		redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		a.Redis = redisCli
		historyCache = cache.NewHistoryCache(
			redisCli,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		a.Log.Info("history cache enabled", "addr", cfg.Redis.Addr)
	}

	var broadcaster app.Broadcaster = a.Hub
	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = mqConn

		relay := worker.NewEventRelayWorker(mqConn, a.Hub, cfg.RabbitMQ.EventQueue, a.Log.With("component", "relay"))
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("start relay worker failed: %w", err)
		}
		a.RelayWorker = relay
		broadcaster = rabbitmqClient.NewEventPublisher(mqConn, cfg.RabbitMQ.EventQueue)
		a.Log.Info("event relay enabled", "queue", cfg.RabbitMQ.EventQueue)
	}

	a.MessageRepo = repository.NewMessageRepository(mysqlDB)
	a.MessageService = app.NewMessageService(
		a.MessageRepo,
		broadcaster,
		historyCache,
		a.Log.With("component", "messages"),
		cfg.StoreTimeout(),
		cfg.App.HistoryLimit,
	)
	return nil
}

// Close releases everything New acquired. It is safe on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.RelayWorker != nil {
		a.RelayWorker.Close()
	}
	if a.Hub != nil {
		if err := a.Hub.Shutdown(5 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("hub shutdown failed: %w", err))
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
