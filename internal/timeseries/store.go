package timeseries

import (
	"sync"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
)

// NameResolver 显示名称解析（*config.DisplayNames 实现）
type NameResolver interface {
	Origin(origin string) string
	Field(origin, field string) string
}

type series struct {
	points []models.DataPoint
	// rejected 连续被离群值过滤拒绝的次数
	rejected int
}

type originSeries struct {
	fields map[string]*series
	order  []string
}

// Store 按 (origin, field) 保存的内存时间序列
// 摄取路径为唯一写入方，广播循环在锁内取窗口快照
type Store struct {
	mu      sync.RWMutex
	origins map[string]*originSeries
	order   []string
	filter  OutlierFilter

	catalogChanged bool
}

// NewStore 创建 Store
func NewStore(filter OutlierFilter) *Store {
	return &Store{
		origins: make(map[string]*originSeries),
		filter:  filter,
	}
}

// Touch 登记 origin（即使没有任何字段），首次出现时标记目录已变更
func (s *Store) Touch(origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.originLocked(origin)
}

// Append O(1) 追加，调用方保证时间戳不递减
func (s *Store) Append(origin, field string, point models.DataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser := s.seriesLocked(origin, field)
	ser.points = append(ser.points, point)
}

// Add 写入数据点：时间戳不早于末尾时追加，否则有序插入
// 被离群值过滤拒绝时返回 false
func (s *Store) Add(origin, field string, point models.DataPoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser := s.seriesLocked(origin, field)
	if !s.filter.Accept(ser.points, point.Value, ser.rejected) {
		ser.rejected++
		return false
	}
	ser.rejected = 0
	ser.points = SortedInsert(ser.points, point)
	return true
}

// Window 返回 (origin, field) 序列中 timestamp > last-timeframe 的数据点副本
// origin 或 field 不存在时返回 false
func (s *Store) Window(origin, field string, timeframe float64) ([]models.DataPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.origins[origin]
	if !ok {
		return nil, false
	}
	ser, ok := o.fields[field]
	if !ok {
		return nil, false
	}
	if len(ser.points) == 0 {
		return []models.DataPoint{}, true
	}

	last := ser.points[len(ser.points)-1].Timestamp
	window := WindowFrom(ser.points, last-timeframe)
	out := make([]models.DataPoint, len(window))
	copy(out, window)
	return out, true
}

// Series 返回完整序列副本
func (s *Store) Series(origin, field string) []models.DataPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.origins[origin]
	if !ok {
		return nil
	}
	ser, ok := o.fields[field]
	if !ok {
		return nil
	}
	out := make([]models.DataPoint, len(ser.points))
	copy(out, ser.points)
	return out
}

// Latest 每个 origin 每个字段的最新值（raw/data）
func (s *Store) Latest() map[string]map[string]models.LatestValue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]models.LatestValue, len(s.origins))
	for name, o := range s.origins {
		fields := make(map[string]models.LatestValue, len(o.fields))
		for field, ser := range o.fields {
			if n := len(ser.points); n > 0 {
				p := ser.points[n-1]
				fields[field] = models.LatestValue{Timestamp: p.Timestamp, Value: p.Value}
			}
		}
		out[name] = fields
	}
	return out
}

// Fields origin 的字段名（按首次出现顺序）
func (s *Store) Fields(origin string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.origins[origin]
	if !ok {
		return nil
	}
	return append([]string(nil), o.order...)
}

// Origins charts/origins 目录：origin 及其字段，附显示名称
func (s *Store) Origins(names NameResolver) []models.OriginInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.OriginInfo, 0, len(s.order))
	for _, name := range s.order {
		o := s.origins[name]
		keys := make([]models.KeyInfo, 0, len(o.order))
		for _, field := range o.order {
			keys = append(keys, models.KeyInfo{Name: field, DisplayName: resolveField(names, name, field)})
		}
		out = append(out, models.OriginInfo{
			Name:        name,
			DisplayName: resolveOrigin(names, name),
			Keys:        keys,
		})
	}
	return out
}

// CatalogChanged 目录是否有未广播的变更
func (s *Store) CatalogChanged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalogChanged
}

// TakeCatalogChanged 读取并清除目录变更标记
func (s *Store) TakeCatalogChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.catalogChanged
	s.catalogChanged = false
	return changed
}

func (s *Store) originLocked(origin string) *originSeries {
	o, ok := s.origins[origin]
	if !ok {
		o = &originSeries{fields: make(map[string]*series)}
		s.origins[origin] = o
		s.order = append(s.order, origin)
		s.catalogChanged = true
	}
	return o
}

func (s *Store) seriesLocked(origin, field string) *series {
	o := s.originLocked(origin)
	ser, ok := o.fields[field]
	if !ok {
		ser = &series{}
		o.fields[field] = ser
		o.order = append(o.order, field)
		s.catalogChanged = true
	}
	return ser
}

func resolveOrigin(names NameResolver, origin string) string {
	if names == nil {
		return origin
	}
	return names.Origin(origin)
}

func resolveField(names NameResolver, origin, field string) string {
	if names == nil {
		return field
	}
	return names.Field(origin, field)
}
