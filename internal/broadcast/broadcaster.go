package broadcast

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Wikwoj0512/pcc-backend/internal/config"
	"github.com/Wikwoj0512/pcc-backend/internal/location"
	"github.com/Wikwoj0512/pcc-backend/internal/profile"
	"github.com/Wikwoj0512/pcc-backend/internal/session"
	"github.com/Wikwoj0512/pcc-backend/internal/timeseries"
	"github.com/Wikwoj0512/pcc-backend/internal/transport"
	"go.uber.org/zap"
)

// 出站事件
const (
	EventChartOrigins = "charts/origins"
	EventChartData    = "charts/data"
	EventMapOrigins   = "maps/origins"
	EventMapData      = "maps/data"
	EventMapTrail     = "maps/trail"
	EventMapHistory   = "maps/history"
	EventRawData      = "raw/data"
)

// DefaultInterval 默认广播周期
const DefaultInterval = 500 * time.Millisecond

// Pusher 推送目标（*transport.Hub 实现）
// Disconnect 关闭连接，客户端重连后获得新的会话
type Pusher interface {
	Push(connID, event string, payload any) error
	Broadcast(event string, payload any) error
	Disconnect(connID string) bool
}

// SnapshotSink 快照镜像（*cache.SnapshotCache 实现）
type SnapshotSink interface {
	SaveRaw(ctx context.Context, snapshot any) error
	SaveProfile(ctx context.Context, name string, snapshot any) error
}

// Broadcaster 周期性广播循环，所有推送都从这里发出
type Broadcaster struct {
	interval    time.Duration
	maxFailures int

	store    *timeseries.Store
	tracker  *location.Tracker
	profiles *profile.Aggregator
	sessions *session.Manager
	names    *config.DisplayNames

	pusher  Pusher
	sink    SnapshotSink
	metrics *Metrics
	logger  *zap.Logger

	sinkFailing bool
}

// NewBroadcaster 创建广播循环
func NewBroadcaster(
	cfg *config.Config,
	store *timeseries.Store,
	tracker *location.Tracker,
	profiles *profile.Aggregator,
	sessions *session.Manager,
	names *config.DisplayNames,
	pusher Pusher,
	metrics *Metrics,
	logger *zap.Logger,
) *Broadcaster {
	maxFailures := cfg.Broadcast.MaxPushFailures
	if maxFailures <= 0 {
		maxFailures = 1
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	interval := cfg.Broadcast.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Broadcaster{
		interval:    interval,
		maxFailures: maxFailures,
		store:       store,
		tracker:     tracker,
		profiles:    profiles,
		sessions:    sessions,
		names:       names,
		pusher:      pusher,
		metrics:     metrics,
		logger:      logger,
	}
}

// SetSink 设置快照镜像，nil 表示关闭
func (b *Broadcaster) SetSink(sink SnapshotSink) {
	b.sink = sink
}

// Run 按固定周期执行 Tick，直到 ctx 取消
func (b *Broadcaster) Run(ctx context.Context) error {
	b.logger.Info("Broadcast loop started", zap.Duration("interval", b.interval))
	defer b.logger.Info("Broadcast loop stopped")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Tick 执行一个广播周期：
// profile（仅有更新的）、每个会话的图表、全局最新值、每个会话的位置、轨迹增量、目录变更
func (b *Broadcaster) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		b.metrics.ticks.Inc()
		b.metrics.tickDuration.Observe(time.Since(start).Seconds())
	}()

	if _, err := b.profiles.EmitAll(true, &profilePublisher{ctx: ctx, b: b}); err != nil {
		b.logger.Debug("Profile emission incomplete", zap.Error(err))
	}

	sessions := b.sessions.All()
	b.metrics.sessions.Set(float64(len(sessions)))

	live := sessions[:0]
	for _, s := range sessions {
		if b.push(s, EventChartData, s.ChartView(b.store)) {
			live = append(live, s)
		}
	}

	latest := b.store.Latest()
	if err := b.pusher.Broadcast(EventRawData, latest); err != nil {
		b.logger.Debug("Raw data broadcast incomplete", zap.Error(err))
	}
	if b.sink != nil {
		b.mirror(b.sink.SaveRaw(ctx, latest))
	}

	current := b.tracker.Current(b.names)
	alive := live[:0]
	for _, s := range live {
		if b.push(s, EventMapData, s.LocationView(current)) {
			alive = append(alive, s)
		}
	}

	if changed := b.tracker.TakeChanged(); len(changed) > 0 {
		for _, s := range alive {
			b.push(s, EventMapTrail, s.TrailDelta(changed))
		}
	}

	if b.store.TakeCatalogChanged() {
		if err := b.pusher.Broadcast(EventChartOrigins, b.store.Origins(b.names)); err != nil {
			b.logger.Debug("Chart origins broadcast incomplete", zap.Error(err))
		}
	}
	if b.tracker.TakeCatalogChanged() {
		if err := b.pusher.Broadcast(EventMapOrigins, b.tracker.Origins(b.names)); err != nil {
			b.logger.Debug("Map origins broadcast incomplete", zap.Error(err))
		}
	}
}

// push 推送到单个会话，返回会话是否仍然存活
// 连接已关闭时立即移除会话，其它失败连续达到上限后移除
func (b *Broadcaster) push(s *session.Session, event string, payload any) bool {
	err := b.pusher.Push(s.ID(), event, payload)
	if err == nil {
		s.ResetFailures()
		b.metrics.pushes.WithLabelValues("ok").Inc()
		return true
	}

	b.metrics.pushes.WithLabelValues("failed").Inc()
	if errors.Is(err, transport.ErrConnectionGone) {
		b.drop(s, event, err)
		return false
	}

	failures := s.RecordFailure()
	if failures >= b.maxFailures {
		b.drop(s, event, err)
		return false
	}
	b.logger.Debug("Push failed, session kept",
		zap.String("session_id", s.ID()),
		zap.String("event", event),
		zap.Int("consecutive_failures", failures),
		zap.Error(err),
	)
	return true
}

// drop 移除会话并关闭其连接，避免连接仍在而会话已不存在
func (b *Broadcaster) drop(s *session.Session, event string, err error) {
	if !b.sessions.Remove(s) {
		return
	}
	b.metrics.sessionRemoved.Inc()
	closed := b.pusher.Disconnect(s.ID())
	b.logger.Info("Removed session after failed push",
		zap.String("session_id", s.ID()),
		zap.String("event", event),
		zap.Bool("connection_closed", closed),
		zap.Error(err),
	)
}

func (b *Broadcaster) mirror(err error) {
	switch {
	case err != nil && !b.sinkFailing:
		b.sinkFailing = true
		b.logger.Warn("Failed to mirror snapshot", zap.Error(err))
	case err == nil && b.sinkFailing:
		b.sinkFailing = false
		b.logger.Info("Snapshot mirroring recovered")
	}
}

// profilePublisher 广播 profile 快照并镜像到 SnapshotSink
type profilePublisher struct {
	ctx context.Context
	b   *Broadcaster
}

func (p *profilePublisher) Broadcast(event string, payload any) error {
	err := p.b.pusher.Broadcast(event, payload)
	if p.b.sink != nil {
		name := strings.TrimPrefix(event, profile.EventPrefix)
		p.b.mirror(p.b.sink.SaveProfile(p.ctx, name, payload))
	}
	return err
}
