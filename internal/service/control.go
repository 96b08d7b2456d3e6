package service

import (
	"encoding/json"
	"fmt"

	"github.com/Wikwoj0512/pcc-backend/internal/broadcast"
	"github.com/Wikwoj0512/pcc-backend/internal/session"
	"go.uber.org/zap"
)

// 入站控制事件
const (
	EventChartConfigure = "charts/configure"
	EventMapConfigure   = "maps/configure"
	EventRequest        = "request"
	EventError          = "error"

	// 旧版客户端使用的图表订阅事件名
	eventLegacyConfigure = "configure"
)

// ErrorReply 控制消息处理失败时回复给调用方的内容
type ErrorReply struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

// OnConnect 新连接总是创建全新会话
func (s *HubService) OnConnect(connID string) {
	s.sessions.Connect(connID)
}

// OnDisconnect 丢弃会话订阅，数据序列保留
func (s *HubService) OnDisconnect(connID string) {
	s.sessions.Disconnect(connID)
}

// OnMessage 处理入站控制消息；错误只回复给调用方
func (s *HubService) OnMessage(connID, event string, data json.RawMessage) {
	sess, ok := s.sessions.Get(connID)
	if !ok {
		s.logger.Debug("Message for unknown session", zap.String("conn_id", connID), zap.String("event", event))
		return
	}

	var err error
	switch event {
	case EventChartConfigure, eventLegacyConfigure:
		err = s.handleChartConfigure(sess, data)
	case EventMapConfigure:
		err = s.handleMapConfigure(sess, data)
	case EventRequest:
		err = s.handleRequest(sess, data)
	default:
		s.logger.Debug("Ignoring unknown event", zap.String("conn_id", connID), zap.String("event", event))
		return
	}

	if err != nil {
		s.logger.Warn("Control message rejected",
			zap.String("conn_id", connID),
			zap.String("event", event),
			zap.Error(err),
		)
		s.reply(sess, EventError, ErrorReply{Event: event, Error: err.Error()})
	}
}

func (s *HubService) handleChartConfigure(sess *session.Session, data json.RawMessage) error {
	payload, err := decodePayload(data)
	if err != nil {
		return err
	}
	return sess.Configure(payload)
}

func (s *HubService) handleMapConfigure(sess *session.Session, data json.RawMessage) error {
	payload, err := decodePayload(data)
	if err != nil {
		return err
	}
	history, err := sess.ConfigureLocations(payload, s.tracker)
	if err != nil {
		return err
	}
	s.reply(sess, broadcast.EventMapHistory, history)
	return nil
}

// handleRequest 按需推送目录，只发给请求方
// data 为事件名字符串或 {"event": "..."}
func (s *HubService) handleRequest(sess *session.Session, data json.RawMessage) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		var wrapped struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return fmt.Errorf("%w: request must name an event", session.ErrInvalidRequest)
		}
		name = wrapped.Event
	}

	switch name {
	case broadcast.EventChartOrigins:
		s.reply(sess, name, s.ChartOrigins())
	case broadcast.EventMapOrigins:
		s.reply(sess, name, s.MapOrigins())
	default:
		return fmt.Errorf("%w: unknown request %q", session.ErrInvalidRequest, name)
	}
	return nil
}

func (s *HubService) reply(sess *session.Session, event string, payload any) {
	if err := s.hub.Push(sess.ID(), event, payload); err != nil {
		s.logger.Debug("Failed to reply",
			zap.String("conn_id", sess.ID()),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func decodePayload(data json.RawMessage) (any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", session.ErrInvalidRequest)
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrInvalidRequest, err)
	}
	return payload, nil
}
