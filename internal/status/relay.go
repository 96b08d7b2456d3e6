package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Event 状态推送事件名
const Event = "statuses/data"

// ErrUpstream 状态服务不可达或返回非 200
var ErrUpstream = errors.New("status upstream error")

// Publisher 向所有连接广播事件
type Publisher interface {
	Broadcast(event string, payload any) error
}

// Relay 轮询外部状态服务并转发到 statuses/data
// 成功后等待 pollInterval，失败后固定等待 retryInterval，不设重试上限
type Relay struct {
	client        *resty.Client
	url           string
	pub           Publisher
	pollInterval  time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

// NewRelay 创建 Relay
func NewRelay(url string, timeout, pollInterval, retryInterval time.Duration, pub Publisher, logger *zap.Logger) *Relay {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Relay{
		client:        client,
		url:           url,
		pub:           pub,
		pollInterval:  pollInterval,
		retryInterval: retryInterval,
		logger:        logger,
	}
}

// Run 阻塞运行直到 ctx 取消
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("Status relay started", zap.String("url", r.url))
	defer r.logger.Info("Status relay stopped")

	for {
		wait := r.pollInterval

		payload, err := r.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("Failed to fetch status",
				zap.String("url", r.url),
				zap.Duration("retry_in", r.retryInterval),
				zap.Error(err),
			)
			wait = r.retryInterval
		} else if err := r.pub.Broadcast(Event, payload); err != nil {
			r.logger.Debug("Status broadcast incomplete", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// Poll 请求一次状态服务，返回 JSON 响应体
func (r *Relay) Poll(ctx context.Context) (json.RawMessage, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		Get(r.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode())
	}

	body := resp.Body()
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrUpstream)
	}
	return json.RawMessage(body), nil
}
