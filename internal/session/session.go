package session

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
	"github.com/Wikwoj0512/pcc-backend/internal/timeseries"
	"go.uber.org/zap"
)

const (
	// DefaultTimeframe 默认图表时间窗口（总线时钟单位）
	DefaultTimeframe = 0.1
	// DefaultPoints 默认降采样目标点数
	DefaultPoints = 10
	// HistoryLimit maps/history 每个 origin 返回的轨迹点数上限
	HistoryLimit = 200
)

// ErrInvalidRequest 订阅请求格式错误，只报告给请求方
var ErrInvalidRequest = errors.New("invalid request")

// SeriesSource 图表数据来源（*timeseries.Store 实现）
type SeriesSource interface {
	Window(origin, field string, timeframe float64) ([]models.DataPoint, bool)
}

// TrailSource 轨迹来源（*location.Tracker 实现）
type TrailSource interface {
	History(origin string, limit int) []models.Position
}

// Subscription 一个 origin 的图表字段订阅
type Subscription struct {
	Origin string
	Fields []string
}

// Session 每个连接一个，保存图表订阅与地图订阅
// 只被所属连接的 configure 修改，广播循环每个周期读取
type Session struct {
	id     string
	logger *zap.Logger

	mu        sync.RWMutex
	charts    []Subscription
	timeframe float64
	points    int
	tracked   []string

	historyLimit int
	failures     atomic.Int32
}

// New 创建空订阅的 Session
func New(id string, logger *zap.Logger) *Session {
	return &Session{
		id:           id,
		logger:       logger,
		timeframe:    DefaultTimeframe,
		points:       DefaultPoints,
		historyLimit: HistoryLimit,
	}
}

// ID 连接 ID
func (s *Session) ID() string {
	return s.id
}

// Settings 当前时间窗口与目标点数
func (s *Session) Settings() (float64, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeframe, s.points
}

// Subscriptions 当前图表订阅副本
func (s *Session) Subscriptions() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subscription, len(s.charts))
	for i, sub := range s.charts {
		out[i] = Subscription{Origin: sub.Origin, Fields: append([]string(nil), sub.Fields...)}
	}
	return out
}

// Tracked 当前跟踪的位置 origin
func (s *Session) Tracked() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tracked...)
}

// Configure 处理 charts/configure
//
// origins 为 origin -> 字段列表的映射时整体替换图表订阅，非列表的条目被跳过；
// timeframe / points 解析失败时保留原值并记录日志。只有 data 不是对象时返回 ErrInvalidRequest。
func (s *Session) Configure(data any) error {
	payload, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: configure payload must be an object", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if origins, ok := payload["origins"].(map[string]any); ok {
		charts := make([]Subscription, 0, len(origins))
		for origin, keys := range origins {
			list, ok := keys.([]any)
			if !ok {
				continue
			}
			fields := make([]string, 0, len(list))
			for _, k := range list {
				if field, ok := k.(string); ok {
					fields = append(fields, field)
				}
			}
			charts = append(charts, Subscription{Origin: origin, Fields: fields})
		}
		sort.Slice(charts, func(i, j int) bool { return charts[i].Origin < charts[j].Origin })
		s.charts = charts
	}

	if raw, ok := payload["timeframe"]; ok {
		if tf, err := parseFloat(raw); err != nil {
			s.logger.Warn("Failed to set timeframe",
				zap.String("session_id", s.id),
				zap.Any("timeframe", raw),
				zap.Error(err),
			)
		} else {
			s.timeframe = tf
		}
	}

	if raw, ok := payload["points"]; ok {
		if n, err := parseInt(raw); err != nil {
			s.logger.Warn("Failed to set points",
				zap.String("session_id", s.id),
				zap.Any("points", raw),
				zap.Error(err),
			)
		} else {
			s.points = n
		}
	}

	return nil
}

// ChartView charts/data：每个订阅字段在时间窗口内的降采样数据，[timestamp, value] 对
// origin 或字段不存在时为空序列
func (s *Session) ChartView(src SeriesSource) map[string]map[string][][2]any {
	s.mu.RLock()
	charts := s.charts
	timeframe, points := s.timeframe, s.points
	s.mu.RUnlock()

	out := make(map[string]map[string][][2]any, len(charts))
	for _, sub := range charts {
		fields := make(map[string][][2]any, len(sub.Fields))
		for _, field := range sub.Fields {
			window, ok := src.Window(sub.Origin, field, timeframe)
			if !ok || len(window) == 0 {
				fields[field] = [][2]any{}
				continue
			}
			reduced := timeseries.LTTB(window, points)
			pairs := make([][2]any, len(reduced))
			for i, p := range reduced {
				pairs[i] = p.Pair()
			}
			fields[field] = pairs
		}
		out[sub.Origin] = fields
	}
	return out
}

// ConfigureLocations 处理 maps/configure：data 必须是字符串列表
// 成功时替换跟踪的 origin，并返回每个有历史的 origin 最近若干个轨迹点（默认 HistoryLimit）
func (s *Session) ConfigureLocations(data any, trails TrailSource) (map[string][]models.Position, error) {
	origins, err := stringList(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tracked = origins
	s.mu.Unlock()

	history := make(map[string][]models.Position, len(origins))
	for _, origin := range origins {
		if points := trails.History(origin, s.historyLimit); len(points) > 0 {
			history[origin] = points
		}
	}
	return history, nil
}

// LocationView maps/data：跟踪的 origin 中有当前位置的部分
func (s *Session) LocationView(current map[string]models.MapLocation) map[string]models.MapLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.MapLocation, len(s.tracked))
	for _, origin := range s.tracked {
		if loc, ok := current[origin]; ok {
			out[origin] = loc
		}
	}
	return out
}

// TrailDelta maps/trail：跟踪的 origin 中本周期有新轨迹点的部分
func (s *Session) TrailDelta(changed map[string][]models.Position) map[string][]models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.Position)
	for _, origin := range s.tracked {
		if points, ok := changed[origin]; ok {
			out[origin] = points
		}
	}
	return out
}

// RecordFailure 记录一次推送失败，返回连续失败次数
func (s *Session) RecordFailure() int {
	return int(s.failures.Add(1))
}

// ResetFailures 推送成功后清零
func (s *Session) ResetFailures() {
	s.failures.Store(0)
}

func stringList(data any) ([]string, error) {
	switch v := data.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: origins must be a list of strings", ErrInvalidRequest)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: origins must be a list of strings", ErrInvalidRequest)
	}
}

func parseFloat(v any) (float64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		if f, ok := models.ToFloat(v); ok {
			return f, nil
		}
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func parseInt(v any) (int, error) {
	switch n := v.(type) {
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		if f, ok := models.ToFloat(v); ok {
			return int(f), nil
		}
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
