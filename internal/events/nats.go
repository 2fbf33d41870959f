// Package events 提供平台事件总线。
// 当前实现基于 NATS JetStream，承载函数生命周期事件
// 以及沙箱 emit 能力发出的自定义事件。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/domain"
)

// Event 表示平台内部事件（JSON 格式）。
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventHandler 定义事件处理回调。
type EventHandler func(event *Event) error

// Bus 是事件总线接口。
// Emit 是沙箱 emit 能力的底层：发布失败只向上返回错误，
// 由调用方决定是否吞掉（emit 语义是尽力而为）。
// 生命周期事件由管理面在函数创建/更新/删除时发布。
type Bus interface {
	// Emit 以指定 subject 发布一个事件，data 会被序列化为 JSON
	Emit(ctx context.Context, subject string, data interface{}) error
	// PublishFunctionCreated 发布"函数创建"事件
	PublishFunctionCreated(ctx context.Context, fn *domain.Function) error
	// PublishFunctionUpdated 发布"函数更新"事件
	PublishFunctionUpdated(ctx context.Context, fn *domain.Function) error
	// PublishFunctionDeleted 发布"函数删除"事件
	PublishFunctionDeleted(ctx context.Context, fn *domain.Function) error
	// PublishInvocationCompleted 发布"调用完成"事件，载荷是本次调用的审计记录
	PublishInvocationCompleted(ctx context.Context, entry *domain.FunctionLog) error
	// Close 关闭总线
	Close() error
}

// NATSBus 封装 NATS/JetStream 连接与常用发布/订阅操作。
type NATSBus struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Logger
}

// NewNATSBus 创建 NATSBus 并初始化所需的 JetStream Stream。
func NewNATSBus(natsURL string, logger *logrus.Logger) (*NATSBus, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// 为生命周期事件与沙箱自定义事件初始化 Stream（不存在则创建，存在则尝试更新配置）
	streams := []nats.StreamConfig{
		{
			Name:     "FUNCTION_EVENTS",
			Subjects: []string{"function.>"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour * 7, // 保留 7 天
		},
		{
			Name:     "HALO_EVENTS",
			Subjects: []string{"halo.>"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour * 1, // 保留 1 天
		},
	}

	for _, cfg := range streams {
		_, err := js.AddStream(&cfg)
		if err != nil && err != nats.ErrStreamNameAlreadyInUse {
			// 失败时尝试更新（例如 Stream 已存在但配置不同）
			js.UpdateStream(&cfg)
		}
	}

	return &NATSBus{
		conn:   nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close 关闭底层 NATS 连接。
func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}

// Emit 发布一个自定义事件。沙箱发出的事件统一挂在 halo.<subject> 下，
// 防止函数代码伪造生命周期事件。
func (b *NATSBus) Emit(ctx context.Context, subject string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	event := &Event{
		ID:        uuid.New().String(),
		Type:      subject,
		Source:    "function-sandbox",
		Subject:   "halo." + subject,
		Data:      raw,
		Timestamp: time.Now(),
	}
	return b.publish(event.Subject, event)
}

func (b *NATSBus) publish(subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"event_id": event.ID,
		"type":     event.Type,
	}).Debug("Event published")

	return nil
}

// Subscribe 订阅匹配 subject 的事件（支持通配符）。
// ctx 取消时将自动取消订阅。
func (b *NATSBus) Subscribe(ctx context.Context, subject string, handler EventHandler) error {
	sub, err := b.js.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.WithError(err).Error("Failed to unmarshal event")
			msg.Nak()
			return
		}

		if err := handler(&event); err != nil {
			b.logger.WithError(err).WithField("event_id", event.ID).Error("Failed to handle event")
			msg.Nak()
			return
		}

		msg.Ack()
	}, nats.Durable("halo-processor"), nats.ManualAck())

	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}

// PublishFunctionCreated 发布"函数创建"事件。
func (b *NATSBus) PublishFunctionCreated(ctx context.Context, fn *domain.Function) error {
	return b.publishLifecycle("function.created", fn)
}

// PublishFunctionUpdated 发布"函数更新"事件。
func (b *NATSBus) PublishFunctionUpdated(ctx context.Context, fn *domain.Function) error {
	return b.publishLifecycle("function.updated", fn)
}

// PublishFunctionDeleted 发布"函数删除"事件。
func (b *NATSBus) PublishFunctionDeleted(ctx context.Context, fn *domain.Function) error {
	return b.publishLifecycle("function.deleted", fn)
}

// PublishInvocationCompleted 发布"调用完成"事件。
func (b *NATSBus) PublishInvocationCompleted(ctx context.Context, entry *domain.FunctionLog) error {
	return b.publishLifecycle("invocation.completed", entry)
}

func (b *NATSBus) publishLifecycle(eventType string, payload interface{}) error {
	data, _ := json.Marshal(payload)
	event := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    "function-manager",
		Subject:   eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
	return b.publish(event.Subject, event)
}
