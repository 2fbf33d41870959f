package engine

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/auth"
	"github.com/halofn/halo/internal/cloud"
	"github.com/halofn/halo/internal/compiler"
	"github.com/halofn/halo/internal/domain"
	"github.com/halofn/halo/internal/events"
	"github.com/halofn/halo/internal/shared"
	"github.com/halofn/halo/internal/store"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestSDK 构建一个全内存依赖的能力包工厂。
func newTestSDK(t *testing.T, invoke cloud.InvokeFunc) *cloud.SDK {
	t.Helper()
	factory := cloud.NewFactory(
		store.NewMemoryStore(),
		t.TempDir(),
		"test",
		events.NewMemoryBus(),
		auth.NewJWTManager("test-secret", time.Hour),
		shared.NewPreferences(),
		nil,
		testLogger(),
	)
	if invoke != nil {
		factory.BindInvoke(invoke)
	}
	return factory.Build(domain.FunctionContext{})
}

func compile(t *testing.T, source string) string {
	t.Helper()
	code, err := compiler.Compile(source)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return code
}

func run(t *testing.T, source string, fnCtx domain.FunctionContext, sdk *cloud.SDK) (*domain.ExecutionResult, error) {
	t.Helper()
	r := NewGojaRuntime(testLogger())
	return r.Execute(context.Background(), compile(t, source), fnCtx, sdk, Options{
		Timeout:     5 * time.Second,
		MaxLogLines: 100,
	})
}

func TestGojaRuntime_Greet(t *testing.T) {
	source := `
export function main(ctx: any) {
	console.log("greeting", ctx.query.name)
	return { message: "hello " + ctx.query.name }
}
`
	fnCtx := domain.FunctionContext{
		Query:     map[string]string{"name": "world"},
		RequestID: "req-1",
		Method:    "call",
	}
	res, err := run(t, source, fnCtx, newTestSDK(t, nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	value, ok := res.Value.(map[string]interface{})
	if !ok {
		t.Fatalf("Execute() value type = %T, want map", res.Value)
	}
	if value["message"] != "hello world" {
		t.Errorf("Execute() message = %v, want %q", value["message"], "hello world")
	}
	if len(res.Logs) != 1 || res.Logs[0] != "greeting world" {
		t.Errorf("Execute() logs = %v, want [greeting world]", res.Logs)
	}
	if res.TimeUsage < 0 {
		t.Errorf("Execute() time usage = %d, want >= 0", res.TimeUsage)
	}
}

func TestGojaRuntime_DefaultExportFallback(t *testing.T) {
	source := `
export default function (ctx: any) {
	return 42
}
`
	res, err := run(t, source, domain.FunctionContext{}, newTestSDK(t, nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if n, ok := res.Value.(int64); !ok || n != 42 {
		t.Errorf("Execute() value = %v (%T), want 42", res.Value, res.Value)
	}
}

func TestGojaRuntime_NoMainExport(t *testing.T) {
	source := `export const helper = 1`
	_, err := run(t, source, domain.FunctionContext{}, newTestSDK(t, nil))
	if !errors.Is(err, domain.ErrExecutionFailed) {
		t.Errorf("Execute() error = %v, want ErrExecutionFailed", err)
	}
}

func TestGojaRuntime_AsyncMain(t *testing.T) {
	source := `
export async function main(ctx: any) {
	const n = await Promise.resolve(7)
	return n * 2
}
`
	res, err := run(t, source, domain.FunctionContext{}, newTestSDK(t, nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if n, ok := res.Value.(int64); !ok || n != 14 {
		t.Errorf("Execute() value = %v (%T), want 14", res.Value, res.Value)
	}
}

func TestGojaRuntime_ThrowIsExecutionFailed(t *testing.T) {
	source := `
export function main() {
	throw new Error("boom")
}
`
	_, err := run(t, source, domain.FunctionContext{}, newTestSDK(t, nil))
	if !errors.Is(err, domain.ErrExecutionFailed) {
		t.Fatalf("Execute() error = %v, want ErrExecutionFailed", err)
	}
	if errors.Is(err, domain.ErrExecutionTimeout) {
		t.Error("plain throw must not be classified as timeout")
	}
}

func TestGojaRuntime_Timeout(t *testing.T) {
	source := `
export function main() {
	while (true) {}
}
`
	r := NewGojaRuntime(testLogger())
	_, err := r.Execute(context.Background(), compile(t, source), domain.FunctionContext{}, newTestSDK(t, nil), Options{
		Timeout:     100 * time.Millisecond,
		MaxLogLines: 10,
	})
	if !errors.Is(err, domain.ErrExecutionTimeout) {
		t.Errorf("Execute() error = %v, want ErrExecutionTimeout", err)
	}
	if !errors.Is(err, domain.ErrExecutionFailed) {
		t.Error("timeout must remain a kind of execution failure")
	}
}

func TestGojaRuntime_LogLineCap(t *testing.T) {
	source := `
export function main() {
	for (let i = 0; i < 50; i++) {
		console.log("line", i)
	}
	return null
}
`
	r := NewGojaRuntime(testLogger())
	res, err := r.Execute(context.Background(), compile(t, source), domain.FunctionContext{}, newTestSDK(t, nil), Options{
		Timeout:     5 * time.Second,
		MaxLogLines: 10,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(res.Logs) != 10 {
		t.Errorf("Execute() log lines = %d, want capped at 10", len(res.Logs))
	}
}

func TestGojaRuntime_ObjectLogFormatting(t *testing.T) {
	source := `
export function main() {
	console.log("result:", { ok: true })
	return null
}
`
	res, err := run(t, source, domain.FunctionContext{}, newTestSDK(t, nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(res.Logs) != 1 || res.Logs[0] != `result: {"ok":true}` {
		t.Errorf("Execute() logs = %v", res.Logs)
	}
}

func TestGojaRuntime_DatabaseCapability(t *testing.T) {
	source := `
export async function main() {
	const db = cloud.database()
	await db.collection("users").add({ name: "alice", role: "admin" })
	const doc = await db.collection("users").where({ name: "alice" }).getOne()
	return doc.role
}
`
	res, err := run(t, source, domain.FunctionContext{}, newTestSDK(t, nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Value != "admin" {
		t.Errorf("Execute() value = %v, want admin", res.Value)
	}
}

func TestGojaRuntime_StorageCapability(t *testing.T) {
	source := `
export function main() {
	const bucket = cloud.storage("reports")
	bucket.put("daily.txt", "42 invocations")
	return bucket.get("daily.txt")
}
`
	res, err := run(t, source, domain.FunctionContext{}, newTestSDK(t, nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Value != "42 invocations" {
		t.Errorf("Execute() value = %v, want stored content", res.Value)
	}
}

func TestGojaRuntime_SharedCapability(t *testing.T) {
	sdk := newTestSDK(t, nil)

	source := `
export function main() {
	cloud.shared.set("counter", 5)
	return cloud.shared.get("counter")
}
`
	res, err := run(t, source, domain.FunctionContext{}, sdk)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if n, ok := res.Value.(int64); !ok || n != 5 {
		t.Errorf("Execute() value = %v (%T), want 5", res.Value, res.Value)
	}

	// 同一能力包再次执行时仍然可见（跨调用共享）
	if v, ok := sdk.Shared.Get("counter"); !ok || v != int64(5) {
		t.Errorf("shared store value = %v, %v", v, ok)
	}
}

func TestGojaRuntime_TokenCapability(t *testing.T) {
	source := `
export function main() {
	const token = cloud.getToken({ uid: "user-1" })
	const claims = cloud.parseToken(token)
	return claims.uid
}
`
	res, err := run(t, source, domain.FunctionContext{}, newTestSDK(t, nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Value != "user-1" {
		t.Errorf("Execute() value = %v, want user-1", res.Value)
	}
}

func TestGojaRuntime_InvokeCapability(t *testing.T) {
	var gotName string
	var gotDepth int
	invoke := func(ctx context.Context, name string, fnCtx domain.FunctionContext) (*domain.ExecutionResult, error) {
		gotName = name
		gotDepth = fnCtx.Depth
		return &domain.ExecutionResult{Value: map[string]interface{}{"from": name}}, nil
	}

	source := `
export async function main() {
	const res = await cloud.invoke("callee", { body: { n: 1 } })
	return res.value.from
}
`
	res, err := run(t, source, domain.FunctionContext{}, newTestSDK(t, invoke))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Value != "callee" {
		t.Errorf("Execute() value = %v, want callee", res.Value)
	}
	if gotName != "callee" {
		t.Errorf("invoke name = %q, want callee", gotName)
	}
	if gotDepth != 1 {
		t.Errorf("invoke depth = %d, want parent depth + 1 = 1", gotDepth)
	}
}

func TestGojaRuntime_InvokeErrorPropagates(t *testing.T) {
	invoke := func(ctx context.Context, name string, fnCtx domain.FunctionContext) (*domain.ExecutionResult, error) {
		return nil, domain.ErrFunctionNotFound
	}

	source := `
export async function main() {
	await cloud.invoke("ghost", {})
	return "unreachable"
}
`
	_, err := run(t, source, domain.FunctionContext{}, newTestSDK(t, invoke))
	if !errors.Is(err, domain.ErrExecutionFailed) {
		t.Errorf("Execute() error = %v, want ErrExecutionFailed", err)
	}
}
