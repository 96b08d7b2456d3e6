package consumer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Wikwoj0512/pcc-backend/internal/config"
	"github.com/Wikwoj0512/pcc-backend/internal/decoder"
	"github.com/Wikwoj0512/pcc-backend/internal/location"
	"github.com/Wikwoj0512/pcc-backend/internal/models"
	"github.com/Wikwoj0512/pcc-backend/internal/mqtt"
	"github.com/Wikwoj0512/pcc-backend/internal/profile"
	"github.com/Wikwoj0512/pcc-backend/internal/timeseries"
	"go.uber.org/zap"
)

// Bus 消息总线（*mqtt.Client 实现）
type Bus interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer 总线消费者，摄取路径上 Store / Tracker / Aggregator 的唯一写入方
type MQTTConsumer struct {
	config   *config.Config
	bus      Bus
	store    *timeseries.Store
	tracker  *location.Tracker
	profiles *profile.Aggregator
	metrics  *Metrics
	logger   *zap.Logger
}

// NewMQTTConsumer 创建消费者
func NewMQTTConsumer(
	cfg *config.Config,
	bus Bus,
	store *timeseries.Store,
	tracker *location.Tracker,
	profiles *profile.Aggregator,
	metrics *Metrics,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:   cfg,
		bus:      bus,
		store:    store,
		tracker:  tracker,
		profiles: profiles,
		metrics:  metrics,
		logger:   logger,
	}
}

// Metrics 返回指标
func (c *MQTTConsumer) Metrics() *Metrics {
	return c.metrics
}

// Start 订阅主题并阻塞直到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	topic := c.config.MQTT.Topic
	if err := c.bus.Subscribe(topic, c.config.MQTT.QoS, c.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", topic),
		zap.Uint8("qos", c.config.MQTT.QoS),
	)

	if c.config.MetricsReportInterval > 0 {
		go c.reportMetrics(ctx, c.config.MetricsReportInterval)
	}

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop() error {
	if err := c.bus.Unsubscribe(c.config.MQTT.Topic); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", c.config.MQTT.Topic, err)
	}
	c.logger.Info("MQTT consumer stopped", zap.String("topic", c.config.MQTT.Topic))
	return nil
}

// HandleMessage 处理单条总线消息：解码后写入时间序列、位置与 profile
// 解码失败的消息被丢弃，错误只用于日志
func (c *MQTTConsumer) HandleMessage(topic string, payload []byte) error {
	startTime := time.Now()
	c.metrics.IncrementProcessed()

	record, err := decoder.Decode(payload)
	if err != nil {
		c.metrics.IncrementFailed()
		c.logger.Warn("Dropping undecodable message",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		return err
	}

	c.store.Touch(record.Origin)

	keys := make([]string, 0, len(record.Fields))
	for key := range record.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	position := record.Location
	var stored, rejected, profiled int
	for _, key := range keys {
		value := record.Fields[key]
		point := models.DataPoint{Timestamp: record.Timestamp, Value: value}

		if !c.store.Add(record.Origin, key, point) {
			rejected++
			position = dropComponent(position, decoder.ClassifyLocation(key))
			c.logger.Debug("Rejected outlier value",
				zap.String("origin", record.Origin),
				zap.String("field", key),
				zap.Any("value", value),
			)
			continue
		}
		stored++

		if c.profiles.AddValue(record.Origin, key, value) {
			profiled++
		}
	}

	recorded := 0
	if record.HasLocation && c.tracker.Update(record.Origin, position) {
		recorded = 1
	}

	c.metrics.AddValues(stored, rejected, recorded, profiled)
	c.metrics.IncrementSucceeded(time.Since(startTime))
	return nil
}

func dropComponent(p models.Position, component decoder.Component) models.Position {
	switch component {
	case decoder.ComponentLat:
		p.Lat = nil
	case decoder.ComponentLng:
		p.Lng = nil
	case decoder.ComponentAlt:
		p.Alt = nil
	}
	return p
}

// reportMetrics 定期报告指标
func (c *MQTTConsumer) reportMetrics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := c.metrics.GetSnapshot()
			uptime := time.Since(snapshot.StartTime)

			var avgProcessingTime time.Duration
			if snapshot.MessagesSucceeded > 0 {
				avgProcessingTime = snapshot.TotalProcessingTime / time.Duration(snapshot.MessagesSucceeded)
			}

			var successRate float64
			if snapshot.MessagesProcessed > 0 {
				successRate = float64(snapshot.MessagesSucceeded) / float64(snapshot.MessagesProcessed) * 100
			}

			c.logger.Info("Ingestion metrics",
				zap.Duration("uptime", uptime),
				zap.Int64("messages_processed", snapshot.MessagesProcessed),
				zap.Int64("messages_succeeded", snapshot.MessagesSucceeded),
				zap.Int64("messages_failed", snapshot.MessagesFailed),
				zap.Int64("values_stored", snapshot.ValuesStored),
				zap.Int64("values_rejected", snapshot.ValuesRejected),
				zap.Int64("positions_recorded", snapshot.PositionsRecorded),
				zap.Int64("profile_updates", snapshot.ProfileUpdates),
				zap.Float64("success_rate_percent", successRate),
				zap.Duration("avg_processing_time", avgProcessingTime),
				zap.Time("last_process_time", snapshot.LastProcessTime),
			)
		}
	}
}
