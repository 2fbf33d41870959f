package faas

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/auth"
	"github.com/halofn/halo/internal/cloud"
	"github.com/halofn/halo/internal/compiler"
	"github.com/halofn/halo/internal/domain"
	"github.com/halofn/halo/internal/engine"
	"github.com/halofn/halo/internal/events"
	"github.com/halofn/halo/internal/metrics"
	"github.com/halofn/halo/internal/shared"
	"github.com/halofn/halo/internal/store"
)

// 指标只能向默认注册表注册一次，整个测试二进制共享一个实例。
var testMetrics = metrics.NewMetrics("halo_faas_test")

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fixture struct {
	store *store.MemoryStore
	logs  *store.MemoryStore
	prefs *shared.Preferences
	bus   *events.MemoryBus
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLogs(t, nil)
}

// newFixtureWithLogs 允许注入替代的审计日志仓库（如注定失败的仓库）。
func newFixtureWithLogs(t *testing.T, logRepo domain.FunctionLogRepository) *fixture {
	t.Helper()
	ms := store.NewMemoryStore()
	prefs := shared.NewPreferences()
	logger := testLogger()
	bus := events.NewMemoryBus()

	factory := cloud.NewFactory(ms, t.TempDir(), "test", bus,
		auth.NewJWTManager("test-secret", time.Hour), prefs, nil, logger)

	if logRepo == nil {
		logRepo = ms
	}
	svc := NewService(engine.NewGojaRuntime(logger), factory, ms, logRepo, bus, testMetrics, logger,
		engine.Options{Timeout: 5 * time.Second, MaxLogLines: 100}, 8)

	return &fixture{store: ms, logs: ms, prefs: prefs, bus: bus, svc: svc}
}

func (f *fixture) register(t *testing.T, id, name, source string) *domain.Function {
	t.Helper()
	code, err := compiler.Compile(source)
	if err != nil {
		t.Fatalf("compile %q: %v", name, err)
	}
	now := time.Now()
	fn := &domain.Function{
		ID:           id,
		Name:         name,
		Source:       source,
		CompiledCode: code,
		Status:       domain.FunctionStatusActive,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.store.Create(fn); err != nil {
		t.Fatalf("create %q: %v", name, err)
	}
	return fn
}

func TestInvokeNested_TraceLineFirst(t *testing.T) {
	f := newFixture(t)
	fn := f.register(t, "fn-echo", "echo", `
export function main(ctx: any) {
	console.log("echoing")
	return ctx.body
}
`)

	res, err := f.svc.InvokeNested(context.Background(), "echo", domain.FunctionContext{
		Body:  map[string]interface{}{"n": float64(1)},
		Depth: 1,
	})
	if err != nil {
		t.Fatalf("InvokeNested() error = %v", err)
	}

	want := "invoked in function: echo (" + fn.ID + ")"
	if len(res.Logs) == 0 || res.Logs[0] != want {
		t.Errorf("InvokeNested() logs = %v, want first line %q", res.Logs, want)
	}
	if len(res.Logs) != 2 || res.Logs[1] != "echoing" {
		t.Errorf("InvokeNested() logs = %v, want trace line followed by function output", res.Logs)
	}
}

func TestInvokeNested_NotFoundNoAudit(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.InvokeNested(context.Background(), "ghost", domain.FunctionContext{Depth: 1})
	if !errors.Is(err, domain.ErrFunctionNotFound) {
		t.Fatalf("InvokeNested() error = %v, want ErrFunctionNotFound", err)
	}
	// 错误信息需点名未解析到的被调函数
	if !strings.Contains(err.Error(), `"ghost"`) {
		t.Errorf("InvokeNested() error = %q, want callee name in message", err)
	}
	if n := f.logs.CountLogs(); n != 0 {
		t.Errorf("audit entries = %d, want 0 for failed resolution", n)
	}
}

func TestInvokeNested_InactiveNotInvokable(t *testing.T) {
	f := newFixture(t)
	fn := f.register(t, "fn-off", "offline", `export function main() { return 1 }`)
	fn.Status = domain.FunctionStatusInactive
	if err := f.store.Update(fn); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := f.svc.InvokeNested(context.Background(), "offline", domain.FunctionContext{Depth: 1})
	if !errors.Is(err, domain.ErrFunctionNotFound) {
		t.Errorf("InvokeNested() error = %v, want ErrFunctionNotFound for inactive function", err)
	}
}

func TestInvokeNested_ExactlyOneAuditEntry(t *testing.T) {
	f := newFixture(t)
	fn := f.register(t, "fn-audit", "audited", `export function main() { return "done" }`)

	if _, err := f.svc.InvokeNested(context.Background(), "audited", domain.FunctionContext{Depth: 1}); err != nil {
		t.Fatalf("InvokeNested() error = %v", err)
	}

	if n := f.logs.CountLogs(); n != 1 {
		t.Fatalf("audit entries = %d, want exactly 1", n)
	}
	entries, _, err := f.logs.ListByFunction(fn.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListByFunction() error = %v", err)
	}
	entry := entries[0]
	if entry.CreatedBy != fn.ID {
		t.Errorf("audit created_by = %q, want resolved function id %q", entry.CreatedBy, fn.ID)
	}
	if entry.RequestID != "func_"+fn.ID {
		t.Errorf("audit request_id = %q, want %q", entry.RequestID, "func_"+fn.ID)
	}
	if entry.FuncName != "audited" {
		t.Errorf("audit func_name = %q, want audited", entry.FuncName)
	}
}

func TestInvoke_PublishesInvocationCompleted(t *testing.T) {
	f := newFixture(t)
	fn := f.register(t, "fn-evt", "evented", `export function main() { return 1 }`)

	if _, err := f.svc.Invoke(context.Background(), fn, domain.FunctionContext{RequestID: "req-evt"}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	var completed []*events.Event
	for _, evt := range f.bus.Events() {
		if evt.Type == "invocation.completed" {
			completed = append(completed, evt)
		}
	}
	if len(completed) != 1 {
		t.Fatalf("invocation.completed events = %d, want exactly 1", len(completed))
	}

	var entry domain.FunctionLog
	if err := json.Unmarshal(completed[0].Data, &entry); err != nil {
		t.Fatalf("unmarshal event payload: %v", err)
	}
	if entry.FuncID != fn.ID {
		t.Errorf("event func_id = %q, want %q", entry.FuncID, fn.ID)
	}
	if entry.RequestID != "req-evt" {
		t.Errorf("event request_id = %q, want req-evt", entry.RequestID)
	}
}

func TestInvoke_NoCompletionEventOnFailure(t *testing.T) {
	f := newFixture(t)
	fn := f.register(t, "fn-fail", "failing", `export function main() { throw new Error("nope") }`)

	if _, err := f.svc.Invoke(context.Background(), fn, domain.FunctionContext{RequestID: "req-fail"}); err == nil {
		t.Fatal("Invoke() error = nil, want execution failure")
	}

	for _, evt := range f.bus.Events() {
		if evt.Type == "invocation.completed" {
			t.Fatal("invocation.completed published for a failed run")
		}
	}
}

// 空上下文与显式 {method: "call"} 的调用在计时之外不可区分。
func TestInvokeNested_NormalizationIdempotence(t *testing.T) {
	f := newFixture(t)
	f.register(t, "fn-m", "method-echo", `
export function main(ctx: any) {
	console.log("method is", ctx.method)
	return ctx.method
}
`)

	empty, err := f.svc.InvokeNested(context.Background(), "method-echo", domain.FunctionContext{Depth: 1})
	if err != nil {
		t.Fatalf("InvokeNested() error = %v", err)
	}
	explicit, err := f.svc.InvokeNested(context.Background(), "method-echo", domain.FunctionContext{Method: "call", Depth: 1})
	if err != nil {
		t.Fatalf("InvokeNested() error = %v", err)
	}

	if !reflect.DeepEqual(empty.Value, explicit.Value) {
		t.Errorf("values differ: %v vs %v", empty.Value, explicit.Value)
	}
	if !reflect.DeepEqual(empty.Logs, explicit.Logs) {
		t.Errorf("logs differ: %v vs %v", empty.Logs, explicit.Logs)
	}
	if empty.Value != "call" {
		t.Errorf("value = %v, want normalized method %q", empty.Value, "call")
	}
}

// 共享偏好存储跨两次顺序调用可见。
func TestInvoke_SharedVisibleAcrossInvocations(t *testing.T) {
	f := newFixture(t)
	writer := f.register(t, "fn-w", "writer", `
export function main() {
	cloud.shared.set("k", "v")
	return null
}
`)
	reader := f.register(t, "fn-r", "reader", `
export function main() {
	return cloud.shared.get("k")
}
`)

	if _, err := f.svc.Invoke(context.Background(), writer, domain.FunctionContext{RequestID: "req-1"}); err != nil {
		t.Fatalf("Invoke(writer) error = %v", err)
	}
	res, err := f.svc.Invoke(context.Background(), reader, domain.FunctionContext{RequestID: "req-2"})
	if err != nil {
		t.Fatalf("Invoke(reader) error = %v", err)
	}
	if res.Value != "v" {
		t.Errorf("Invoke(reader) value = %v, want value written by first invocation", res.Value)
	}
}

func TestInvoke_Greet(t *testing.T) {
	f := newFixture(t)
	greet := f.register(t, "fn-greet", "greet", `
export function main() {
	return { msg: "hi" }
}
`)

	res, err := f.svc.Invoke(context.Background(), greet, domain.FunctionContext{RequestID: "req-greet"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	value, ok := res.Value.(map[string]interface{})
	if !ok || value["msg"] != "hi" {
		t.Errorf("Invoke() value = %v, want {msg: hi}", res.Value)
	}
	if len(res.Logs) != 0 {
		t.Errorf("Invoke() logs = %v, want empty", res.Logs)
	}
	if res.TimeUsage < 0 {
		t.Errorf("Invoke() time_usage = %d, want >= 0", res.TimeUsage)
	}
}

// 函数调用函数：调用方结果中携带被调方的追踪行，被调方恰有一条审计记录。
func TestInvokeNested_CallerCallee(t *testing.T) {
	f := newFixture(t)
	callee := f.register(t, "fn-callee", "callee", `
export function main() {
	return "from callee"
}
`)
	caller := f.register(t, "fn-caller", "caller", `
export async function main() {
	const res = await cloud.invoke("callee", {})
	return { sub: res }
}
`)

	res, err := f.svc.Invoke(context.Background(), caller, domain.FunctionContext{RequestID: "req-caller"})
	if err != nil {
		t.Fatalf("Invoke(caller) error = %v", err)
	}

	sub := res.Value.(map[string]interface{})["sub"].(map[string]interface{})
	var subLogs []string
	switch v := sub["logs"].(type) {
	case []string:
		subLogs = v
	case []interface{}:
		for _, line := range v {
			subLogs = append(subLogs, line.(string))
		}
	default:
		t.Fatalf("sub result logs type = %T", sub["logs"])
	}
	wantTrace := "invoked in function: callee (" + callee.ID + ")"
	if len(subLogs) == 0 || subLogs[0] != wantTrace {
		t.Errorf("sub result logs = %v, want first line %q", subLogs, wantTrace)
	}
	if sub["value"] != "from callee" {
		t.Errorf("sub result value = %v, want from callee", sub["value"])
	}

	entries, total, err := f.logs.ListByFunction(callee.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListByFunction() error = %v", err)
	}
	if total != 1 {
		t.Fatalf("callee audit entries = %d, want exactly 1", total)
	}
	if entries[0].FuncName != "callee" {
		t.Errorf("audit func_name = %q, want callee", entries[0].FuncName)
	}
}

func TestInvokeNested_RecursionLimit(t *testing.T) {
	f := newFixture(t)
	// 自递归函数：没有深度防护会一直调用下去
	f.register(t, "fn-loop", "loop", `
export async function main() {
	const res = await cloud.invoke("loop", {})
	return res.value
}
`)

	_, err := f.svc.InvokeNested(context.Background(), "loop", domain.FunctionContext{Depth: 1})
	// 递归上限错误穿过沙箱后归入执行失败，但深度防护必须触发而不是耗尽资源
	if err == nil {
		t.Fatal("InvokeNested() expected error for unbounded recursion")
	}

	// 直接超限的调用返回递归上限错误
	_, err = f.svc.InvokeNested(context.Background(), "loop", domain.FunctionContext{Depth: 9})
	if !errors.Is(err, domain.ErrRecursionLimit) {
		t.Errorf("InvokeNested() error = %v, want ErrRecursionLimit", err)
	}
}

// failingLogRepo 的 Insert 总是失败，用于验证审计失败不回滚执行结果。
type failingLogRepo struct{}

func (failingLogRepo) Insert(*domain.FunctionLog) error {
	return domain.ErrLogStoreFailed
}

func (failingLogRepo) ListByFunction(string, int, int) ([]*domain.FunctionLog, int, error) {
	return nil, 0, nil
}

func (failingLogRepo) ListRecent(int) ([]*domain.FunctionLog, error) {
	return nil, nil
}

func TestInvokeNested_AuditFailureDoesNotFailCall(t *testing.T) {
	f := newFixtureWithLogs(t, failingLogRepo{})
	f.register(t, "fn-res", "resilient", `export function main() { return "ok" }`)

	res, err := f.svc.InvokeNested(context.Background(), "resilient", domain.FunctionContext{Depth: 1})
	if err != nil {
		t.Fatalf("InvokeNested() error = %v, audit failure must not fail the call", err)
	}
	if res.Value != "ok" {
		t.Errorf("InvokeNested() value = %v, want ok", res.Value)
	}
}
