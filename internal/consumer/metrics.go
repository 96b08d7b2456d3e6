package consumer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 摄取监控指标
type Metrics struct {
	mu sync.RWMutex

	// 消息处理统计
	MessagesProcessed int64 // 收到的消息总数
	MessagesSucceeded int64 // 成功处理的消息数
	MessagesFailed    int64 // 解码失败被丢弃的消息数

	// 字段统计
	ValuesStored      int64 // 写入时间序列的字段值
	ValuesRejected    int64 // 被离群值过滤拒绝的字段值
	PositionsRecorded int64 // 记录到轨迹的位置
	ProfileUpdates    int64 // 更新了至少一个 profile 的字段值

	// 性能指标
	TotalProcessingTime time.Duration // 总处理时间
	LastProcessTime     time.Time     // 最后处理时间

	// 启动时间
	StartTime time.Time

	messages *prometheus.CounterVec
	values   *prometheus.CounterVec
	trail    prometheus.Counter
}

// NewMetrics 创建指标，reg 为 nil 时只做进程内统计
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StartTime: time.Now(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcc",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Bus messages received, by result.",
		}, []string{"result"}),
		values: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcc",
			Subsystem: "ingest",
			Name:      "values_total",
			Help:      "Decoded field values, by result.",
		}, []string{"result"}),
		trail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcc",
			Subsystem: "ingest",
			Name:      "trail_points_total",
			Help:      "Positions recorded to origin trails.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.values, m.trail)
	}
	return m
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed:   m.MessagesProcessed,
		MessagesSucceeded:   m.MessagesSucceeded,
		MessagesFailed:      m.MessagesFailed,
		ValuesStored:        m.ValuesStored,
		ValuesRejected:      m.ValuesRejected,
		PositionsRecorded:   m.PositionsRecorded,
		ProfileUpdates:      m.ProfileUpdates,
		TotalProcessingTime: m.TotalProcessingTime,
		LastProcessTime:     m.LastProcessTime,
		StartTime:           m.StartTime,
	}
}

// IncrementProcessed 增加处理计数
func (m *Metrics) IncrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
}

// IncrementSucceeded 增加成功计数
func (m *Metrics) IncrementSucceeded(duration time.Duration) {
	m.mu.Lock()
	m.MessagesSucceeded++
	m.TotalProcessingTime += duration
	m.LastProcessTime = time.Now()
	m.mu.Unlock()
	m.messages.WithLabelValues("ok").Inc()
}

// IncrementFailed 增加失败计数
func (m *Metrics) IncrementFailed() {
	m.mu.Lock()
	m.MessagesFailed++
	m.mu.Unlock()
	m.messages.WithLabelValues("dropped").Inc()
}

// AddValues 累加字段统计
func (m *Metrics) AddValues(stored, rejected, positions, profiles int) {
	m.mu.Lock()
	m.ValuesStored += int64(stored)
	m.ValuesRejected += int64(rejected)
	m.PositionsRecorded += int64(positions)
	m.ProfileUpdates += int64(profiles)
	m.mu.Unlock()

	m.values.WithLabelValues("stored").Add(float64(stored))
	m.values.WithLabelValues("rejected").Add(float64(rejected))
	m.trail.Add(float64(positions))
}
