package session

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Manager 连接 ID -> Session
type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	historyLimit int
	logger       *zap.Logger
}

// NewManager 创建 Manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		historyLimit: HistoryLimit,
		logger:       logger,
	}
}

// SetHistoryLimit 设置新建 Session 的 maps/history 轨迹点上限
func (m *Manager) SetHistoryLimit(limit int) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	m.mu.Lock()
	m.historyLimit = limit
	m.mu.Unlock()
}

// Connect 为连接创建全新的 Session，同 ID 的旧 Session 被替换
func (m *Manager) Connect(id string) *Session {
	s := New(id, m.logger)

	m.mu.Lock()
	s.historyLimit = m.historyLimit
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Debug("Session created", zap.String("session_id", id))
	return s
}

// Disconnect 删除 Session，不存在时返回 false
func (m *Manager) Disconnect(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.logger.Debug("Session removed", zap.String("session_id", id))
	}
	return ok
}

// Get 查找 Session
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// All 当前所有 Session（按 ID 排序的快照）
func (m *Manager) All() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len Session 数量
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Remove 删除指定 Session，同 ID 已被新连接替换时不删除
func (m *Manager) Remove(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.id]; !ok || cur != s {
		return false
	}
	delete(m.sessions, s.id)
	return true
}
