package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wikwoj0512/pcc-backend/internal/broadcast"
	"github.com/Wikwoj0512/pcc-backend/internal/cache"
	"github.com/Wikwoj0512/pcc-backend/internal/config"
	"github.com/Wikwoj0512/pcc-backend/internal/consumer"
	"github.com/Wikwoj0512/pcc-backend/internal/location"
	"github.com/Wikwoj0512/pcc-backend/internal/models"
	"github.com/Wikwoj0512/pcc-backend/internal/mqtt"
	"github.com/Wikwoj0512/pcc-backend/internal/profile"
	rediscommon "github.com/Wikwoj0512/pcc-backend/internal/redis"
	"github.com/Wikwoj0512/pcc-backend/internal/session"
	"github.com/Wikwoj0512/pcc-backend/internal/status"
	"github.com/Wikwoj0512/pcc-backend/internal/timeseries"
	"github.com/Wikwoj0512/pcc-backend/internal/transport"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HubService 遥测中心服务：摄取、会话、广播、状态转发与 HTTP/WebSocket 服务
type HubService struct {
	config *config.Config
	logger *zap.Logger

	names    *config.DisplayNames
	store    *timeseries.Store
	tracker  *location.Tracker
	profiles *profile.Aggregator
	sessions *session.Manager

	hub         *transport.Hub
	router      http.Handler
	server      *transport.Server
	consumer    *consumer.MQTTConsumer
	broadcaster *broadcast.Broadcaster
	relay       *status.Relay

	mqttClient  *mqtt.Client
	redisClient *redis.Client

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewHubService 创建服务：加载 profiles 与显示名称配置，连接 MQTT 与（可选）Redis
// profiles 配置错误是致命错误
func NewHubService(cfg *config.Config, logger *zap.Logger) (*HubService, error) {
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt: %w", err)
	}

	s, err := newHubService(cfg, logger, mqttClient, prometheus.NewRegistry())
	if err != nil {
		mqttClient.Disconnect()
		return nil, err
	}
	s.mqttClient = mqttClient

	if cfg.Redis.Enabled {
		redisClient, err := rediscommon.Connect(context.Background(), &cfg.Redis)
		if err != nil {
			mqttClient.Disconnect()
			return nil, err
		}
		s.redisClient = redisClient
		s.broadcaster.SetSink(cache.NewSnapshotCache(cache.NewRedisKVStore(redisClient), cfg.Redis.KeyPrefix, cfg.Redis.TTL))
		logger.Info("Mirroring snapshots to redis",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("key_prefix", cfg.Redis.KeyPrefix),
		)
	}

	return s, nil
}

func newHubService(cfg *config.Config, logger *zap.Logger, bus consumer.Bus, registry *prometheus.Registry) (*HubService, error) {
	entries, err := profile.LoadConfig(cfg.ProfilesConfig)
	if err != nil {
		return nil, err
	}

	names, err := config.LoadDisplayNames(cfg.ReceiverConfig)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		logger.Warn("Receiver config not found, using raw names", zap.String("path", cfg.ReceiverConfig))
		names = &config.DisplayNames{}
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	filter := timeseries.OutlierFilter{
		Window:       cfg.Outlier.Window,
		Tolerance:    cfg.Outlier.Tolerance,
		MinDeviation: cfg.Outlier.MinDeviation,
	}

	s := &HubService{
		config:   cfg,
		logger:   logger,
		names:    names,
		store:    timeseries.NewStore(filter),
		tracker:  location.NewTracker(cfg.Location.TrailThreshold),
		profiles: profile.NewAggregator(entries),
		sessions: session.NewManager(logger),
		hub:      transport.NewHub(cfg.HTTP.AllowedOrigins, logger),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.sessions.SetHistoryLimit(cfg.Broadcast.HistoryLimit)
	s.hub.SetHandler(s)

	s.consumer = consumer.NewMQTTConsumer(cfg, bus, s.store, s.tracker, s.profiles, consumer.NewMetrics(registry), logger)
	s.broadcaster = broadcast.NewBroadcaster(cfg, s.store, s.tracker, s.profiles, s.sessions, names, s.hub, broadcast.NewMetrics(registry), logger)
	if cfg.Status.URL != "" {
		s.relay = status.NewRelay(cfg.Status.URL, cfg.Status.Timeout, cfg.Status.PollInterval, cfg.Status.RetryInterval, s.hub, logger)
	}

	s.router = transport.NewRouter(s.hub, s, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.server = transport.NewServer(cfg.HTTP.Addr, s.router, logger)

	logger.Info("Profiles loaded",
		zap.String("path", cfg.ProfilesConfig),
		zap.Strings("profiles", s.profiles.Names()),
	)
	return s, nil
}

// Handler HTTP 路由
func (s *HubService) Handler() http.Handler {
	return s.router
}

// Start 启动所有组件并阻塞，直到 ctx 取消、Stop 被调用或任一组件失败
func (s *HubService) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("service already started")
	}
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("Starting pcc-backend service components")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.consumer.Start(gctx)
	})
	g.Go(func() error {
		return s.broadcaster.Run(gctx)
	})
	if s.relay != nil {
		g.Go(func() error {
			return s.relay.Run(gctx)
		})
	}
	g.Go(s.server.Start)
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.stopCh:
			cancel()
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		s.hub.Close()
		return s.server.Stop(shutdownCtx)
	})

	return g.Wait()
}

// Stop 停止服务：通知所有组件退出并等待（受 ctx 限制），然后释放总线与 Redis 连接
func (s *HubService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping pcc-backend service")

	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.started.Load() {
		select {
		case <-s.done:
		case <-ctx.Done():
			s.logger.Warn("Timed out waiting for components to stop")
		}
	}

	if err := s.consumer.Stop(); err != nil {
		s.logger.Error("Error unsubscribing from MQTT", zap.Error(err))
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}

	s.logger.Info("pcc-backend service stopped")
	return nil
}

// ChartOrigins charts/origins 目录
func (s *HubService) ChartOrigins() []models.OriginInfo {
	return s.store.Origins(s.names)
}

// MapOrigins maps/origins 目录
func (s *HubService) MapOrigins() []models.OriginInfo {
	return s.tracker.Origins(s.names)
}

// RawData 所有字段最新值
func (s *HubService) RawData() map[string]map[string]models.LatestValue {
	return s.store.Latest()
}
