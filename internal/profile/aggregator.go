package profile

import (
	"errors"
	"fmt"
	"sync"
)

// EventPrefix profile 推送事件前缀，事件名为 profiles/<name>
const EventPrefix = "profiles/"

// ErrUnknownProfile 未配置的 profile
var ErrUnknownProfile = errors.New("unknown profile")

// Publisher 向所有连接广播事件
type Publisher interface {
	Broadcast(event string, payload any) error
}

type entity struct {
	info  map[string]any
	value any
}

type profile struct {
	name     string
	order    []string
	entities map[string]*entity
	dirty    bool
}

// Aggregator 配置声明的 profile 通道集合，启动时构建一次
type Aggregator struct {
	mu       sync.Mutex
	profiles map[string]*profile
	names    []string
	// index origin.field -> 跟踪该实体的 profile
	index map[string][]*profile
}

// NewAggregator 按配置项构建 profile，同一 profile 中重复的实体以后出现的元数据为准并保留首次位置
func NewAggregator(entries []Entry) *Aggregator {
	a := &Aggregator{
		profiles: make(map[string]*profile),
		index:    make(map[string][]*profile),
	}
	for _, e := range entries {
		p, ok := a.profiles[e.Profile]
		if !ok {
			p = &profile{name: e.Profile, entities: make(map[string]*entity)}
			a.profiles[e.Profile] = p
			a.names = append(a.names, e.Profile)
		}
		key := e.Key()
		if ent, ok := p.entities[key]; ok {
			ent.info = e.Info
			continue
		}
		p.entities[key] = &entity{info: e.Info}
		p.order = append(p.order, key)
		a.index[key] = append(a.index[key], p)
	}
	return a
}

// Names profile 名称（按配置顺序）
func (a *Aggregator) Names() []string {
	return append([]string(nil), a.names...)
}

// AddValue 更新所有跟踪 origin.field 的 profile 并标记为脏，未跟踪时为空操作
func (a *Aggregator) AddValue(origin, field string, value any) bool {
	key := EntityKey(origin, field)

	a.mu.Lock()
	defer a.mu.Unlock()

	tracking := a.index[key]
	for _, p := range tracking {
		p.entities[key].value = value
		p.dirty = true
	}
	return len(tracking) > 0
}

// Dirty profile 是否有未推送的更新
func (a *Aggregator) Dirty(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.profiles[name]
	return ok && p.dirty
}

// Snapshot profile 当前快照：按配置顺序的实体，每个实体为元数据加 value
func (a *Aggregator) Snapshot(name string) ([]map[string]any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.profiles[name]
	if !ok {
		return nil, false
	}
	return p.snapshot(), true
}

// Emit 推送 profile 快照到 profiles/<name> 并清除脏标记
// onlyIfDirty 为 true 且没有更新时不推送，返回 false
func (a *Aggregator) Emit(name string, onlyIfDirty bool, pub Publisher) (bool, error) {
	a.mu.Lock()
	p, ok := a.profiles[name]
	if !ok {
		a.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	if onlyIfDirty && !p.dirty {
		a.mu.Unlock()
		return false, nil
	}
	snapshot := p.snapshot()
	p.dirty = false
	a.mu.Unlock()

	if err := pub.Broadcast(EventPrefix+name, snapshot); err != nil {
		return true, fmt.Errorf("failed to emit profile %s: %w", name, err)
	}
	return true, nil
}

// EmitAll 对所有 profile 调用 Emit，返回推送数量及第一个错误
func (a *Aggregator) EmitAll(onlyIfDirty bool, pub Publisher) (int, error) {
	var (
		emitted  int
		firstErr error
	)
	for _, name := range a.names {
		sent, err := a.Emit(name, onlyIfDirty, pub)
		if sent {
			emitted++
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return emitted, firstErr
}

func (p *profile) snapshot() []map[string]any {
	out := make([]map[string]any, 0, len(p.order))
	for _, key := range p.order {
		ent := p.entities[key]
		m := make(map[string]any, len(ent.info)+1)
		for k, v := range ent.info {
			m[k] = v
		}
		m["value"] = ent.value
		out = append(out, m)
	}
	return out
}
