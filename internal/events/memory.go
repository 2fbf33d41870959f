package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halofn/halo/internal/domain"
)

// MemoryBus 是事件总线的进程内实现。
// 事件未启用或测试时使用：记录所有发出的事件，不做任何投递。
type MemoryBus struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemoryBus 创建一个进程内事件总线。
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Emit 记录一个事件。
func (b *MemoryBus) Emit(ctx context.Context, subject string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, &Event{
		ID:        uuid.New().String(),
		Type:      subject,
		Source:    "function-sandbox",
		Subject:   "halo." + subject,
		Data:      raw,
		Timestamp: time.Now(),
	})
	return nil
}

// PublishFunctionCreated 记录一条"函数创建"事件。
func (b *MemoryBus) PublishFunctionCreated(ctx context.Context, fn *domain.Function) error {
	return b.record("function.created", fn)
}

// PublishFunctionUpdated 记录一条"函数更新"事件。
func (b *MemoryBus) PublishFunctionUpdated(ctx context.Context, fn *domain.Function) error {
	return b.record("function.updated", fn)
}

// PublishFunctionDeleted 记录一条"函数删除"事件。
func (b *MemoryBus) PublishFunctionDeleted(ctx context.Context, fn *domain.Function) error {
	return b.record("function.deleted", fn)
}

// PublishInvocationCompleted 记录一条"调用完成"事件。
func (b *MemoryBus) PublishInvocationCompleted(ctx context.Context, entry *domain.FunctionLog) error {
	return b.record("invocation.completed", entry)
}

func (b *MemoryBus) record(eventType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    "function-manager",
		Subject:   eventType,
		Data:      raw,
		Timestamp: time.Now(),
	})
	return nil
}

// Close 关闭总线（无操作）。
func (b *MemoryBus) Close() error {
	return nil
}

// Events 返回已记录的事件快照，供测试断言使用。
func (b *MemoryBus) Events() []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Event, len(b.events))
	copy(out, b.events)
	return out
}

var (
	_ Bus = (*NATSBus)(nil)
	_ Bus = (*MemoryBus)(nil)
)
