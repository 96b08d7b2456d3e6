package location

import (
	"sync"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
)

// DefaultThreshold 默认轨迹记录距离阈值（米）
const DefaultThreshold = 1.0

// NameResolver origin 显示名称解析
type NameResolver interface {
	Origin(origin string) string
}

// Tracker 每个 origin 的当前位置与轨迹
//
// 位置分量的部分更新以写时复制方式合并；与上一次记录点的合成距离超过阈值时
// 追加到只增不减的轨迹，并在本次广播周期内标记为已变更。
type Tracker struct {
	mu        sync.RWMutex
	threshold float64

	current  map[string]models.Position
	recorded map[string]models.Position
	trails   map[string][]models.Position
	order    []string

	changed        map[string][]models.Position
	catalogChanged bool
}

// NewTracker 创建 Tracker
// threshold 为 0 时每次移动都记录（原地不动不记录），负数时使用 DefaultThreshold
func NewTracker(threshold float64) *Tracker {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		threshold: threshold,
		current:   make(map[string]models.Position),
		recorded:  make(map[string]models.Position),
		trails:    make(map[string][]models.Position),
		changed:   make(map[string][]models.Position),
	}
}

// Threshold 轨迹记录阈值（米）
func (t *Tracker) Threshold() float64 {
	return t.threshold
}

// Update 合并一条消息携带的位置分量，返回是否记录到轨迹
func (t *Tracker) Update(origin string, update models.Position) bool {
	if update.Empty() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.current[origin]
	if !seen {
		t.order = append(t.order, origin)
		t.catalogChanged = true
	}
	next := prev.Merge(update)
	t.current[origin] = next

	if !next.Complete() {
		return false
	}

	last, hasLast := t.recorded[origin]
	if hasLast && Distance(last, next) <= t.threshold {
		return false
	}

	t.recorded[origin] = next
	t.trails[origin] = append(t.trails[origin], next)
	t.changed[origin] = append(t.changed[origin], next)
	return true
}

// Current 所有 origin 的当前完整位置（maps/data），附显示名称
func (t *Tracker) Current(names NameResolver) map[string]models.MapLocation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]models.MapLocation, len(t.current))
	for origin, pos := range t.current {
		if !pos.Complete() {
			continue
		}
		display := origin
		if names != nil {
			display = names.Origin(origin)
		}
		out[origin] = models.MapLocation{Position: pos, DisplayName: display}
	}
	return out
}

// History origin 轨迹中最近 limit 个记录点的副本，limit <= 0 返回全部
func (t *Tracker) History(origin string, limit int) []models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	trail := t.trails[origin]
	if limit > 0 && len(trail) > limit {
		trail = trail[len(trail)-limit:]
	}
	if len(trail) == 0 {
		return nil
	}
	return append([]models.Position(nil), trail...)
}

// Trails 所有 origin 轨迹中最近 limit 个记录点
func (t *Tracker) Trails(limit int) map[string][]models.Position {
	t.mu.RLock()
	origins := make([]string, 0, len(t.trails))
	for origin := range t.trails {
		origins = append(origins, origin)
	}
	t.mu.RUnlock()

	out := make(map[string][]models.Position, len(origins))
	for _, origin := range origins {
		out[origin] = t.History(origin, limit)
	}
	return out
}

// TakeChanged 取出并清空自上次调用以来新记录的轨迹点，无变更时返回 nil
func (t *Tracker) TakeChanged() map[string][]models.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.changed) == 0 {
		return nil
	}
	changed := t.changed
	t.changed = make(map[string][]models.Position)
	return changed
}

// Origins maps/origins 目录：出现过位置数据的 origin
func (t *Tracker) Origins(names NameResolver) []models.OriginInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.OriginInfo, 0, len(t.order))
	for _, origin := range t.order {
		display := origin
		if names != nil {
			display = names.Origin(origin)
		}
		out = append(out, models.OriginInfo{Name: origin, DisplayName: display})
	}
	return out
}

// CatalogChanged 位置目录是否有未广播的变更
func (t *Tracker) CatalogChanged() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.catalogChanged
}

// TakeCatalogChanged 读取并清除位置目录变更标记
func (t *Tracker) TakeCatalogChanged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := t.catalogChanged
	t.catalogChanged = false
	return changed
}
