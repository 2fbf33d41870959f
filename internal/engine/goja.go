package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/blob"
	"github.com/halofn/halo/internal/cloud"
	"github.com/halofn/halo/internal/domain"
	"github.com/halofn/halo/internal/shared"
	"github.com/halofn/halo/internal/store"
)

// GojaRuntime 是基于进程内 JS 解释器的运行时。
// 每次执行构造一个全新的解释器实例：没有跨调用的 JS 状态，
// 函数代码只能通过注入的 cloud 对象触达外部世界。
type GojaRuntime struct {
	logger *logrus.Logger
}

// NewGojaRuntime 创建 goja 运行时。
func NewGojaRuntime(logger *logrus.Logger) *GojaRuntime {
	return &GojaRuntime{logger: logger}
}

// Name 返回运行时变体名。
func (r *GojaRuntime) Name() string {
	return "goja"
}

// Execute 在新的解释器实例中执行编译产物。
// 执行模型：注入 console 与 cloud，按 CommonJS 约定装载代码，
// 调用 exports.main（缺省回退 exports.default），入参为调用上下文。
// 异步入口返回的 Promise 在能力均为同步实现的前提下调用返回时已定型。
func (r *GojaRuntime) Execute(ctx context.Context, code string, fnCtx domain.FunctionContext, sdk *cloud.SDK, opts Options) (*domain.ExecutionResult, error) {
	start := time.Now()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	logs := &logBuffer{max: opts.MaxLogLines}
	installConsole(vm, logs)

	cloudObj := &jsCloud{
		ctx:    ctx,
		sdk:    sdk,
		Shared: &jsShared{prefs: sdk.Shared},
	}
	vm.Set("cloud", cloudObj)
	// 兼容别名
	vm.Set("less", cloudObj)

	moduleObj := vm.NewObject()
	exportsObj := vm.NewObject()
	moduleObj.Set("exports", exportsObj)
	vm.Set("module", moduleObj)
	vm.Set("exports", exportsObj)

	if opts.Timeout > 0 {
		timer := time.AfterFunc(opts.Timeout, func() {
			vm.Interrupt("execution timed out")
		})
		defer timer.Stop()
	}

	if _, err := vm.RunString(code); err != nil {
		return nil, wrapJSError(err)
	}

	// 代码可能整体重新赋值 module.exports，从 module 上重取
	exportsVal := moduleObj.Get("exports").ToObject(vm)
	entry := exportsVal.Get("main")
	if entry == nil || goja.IsUndefined(entry) || goja.IsNull(entry) {
		entry = exportsVal.Get("default")
	}
	fn, ok := goja.AssertFunction(entry)
	if !ok {
		return nil, fmt.Errorf("%w: no callable main export", domain.ErrExecutionFailed)
	}

	ret, err := fn(goja.Undefined(), vm.ToValue(contextArg(fnCtx)))
	if err != nil {
		return nil, wrapJSError(err)
	}

	value, err := settledValue(ret)
	if err != nil {
		return nil, err
	}

	result := &domain.ExecutionResult{
		Value:     value,
		Logs:      logs.snapshot(),
		TimeUsage: time.Since(start).Milliseconds(),
	}

	r.logger.WithFields(logrus.Fields{
		"request_id": fnCtx.RequestID,
		"time_usage": result.TimeUsage,
		"log_lines":  len(result.Logs),
	}).Debug("Sandbox execution finished")

	return result, nil
}

// contextArg 把调用上下文转换为传给函数入口的 JS 对象。
func contextArg(fnCtx domain.FunctionContext) map[string]interface{} {
	query := map[string]interface{}{}
	for k, v := range fnCtx.Query {
		query[k] = v
	}
	return map[string]interface{}{
		"query":     query,
		"body":      fnCtx.Body,
		"auth":      fnCtx.Auth,
		"requestId": fnCtx.RequestID,
		"method":    fnCtx.Method,
	}
}

// settledValue 解包入口返回值；异步入口返回的 Promise 此时必须已定型。
func settledValue(v goja.Value) (interface{}, error) {
	if p, ok := v.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result().Export(), nil
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("%w: %s", domain.ErrExecutionFailed, p.Result().String())
		default:
			return nil, fmt.Errorf("%w: returned promise never settled", domain.ErrExecutionFailed)
		}
	}
	return v.Export(), nil
}

// wrapJSError 把解释器错误归一到领域错误分类。
func wrapJSError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return domain.ErrExecutionTimeout
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return fmt.Errorf("%w: %s", domain.ErrExecutionFailed, ex.Value().String())
	}
	return fmt.Errorf("%w: %v", domain.ErrExecutionFailed, err)
}

// ========== console ==========

// logBuffer 收集执行期间的日志行，超出上限的行被丢弃。
type logBuffer struct {
	max   int
	lines []string
}

func (b *logBuffer) append(line string) {
	if b.max > 0 && len(b.lines) >= b.max {
		return
	}
	b.lines = append(b.lines, line)
}

func (b *logBuffer) snapshot() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

func installConsole(vm *goja.Runtime, buf *logBuffer) {
	write := func(call goja.FunctionCall) goja.Value {
		buf.append(formatArgs(call.Arguments))
		return goja.Undefined()
	}

	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		console.Set(name, write)
	}
	vm.Set("console", console)
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, formatValue(a))
	}
	return strings.Join(parts, " ")
}

// formatValue 把日志参数序列化为字符串；对象与数组按 JSON 输出。
func formatValue(v goja.Value) string {
	switch v.Export().(type) {
	case map[string]interface{}, []interface{}:
		if raw, err := json.Marshal(v.Export()); err == nil {
			return string(raw)
		}
	}
	return v.String()
}

// ========== cloud 对象 ==========

// jsCloud 是注入沙箱的 cloud 全局对象。
// 方法名经字段映射后以小写暴露给 JS（database、storage、fetch 等）。
type jsCloud struct {
	ctx context.Context
	sdk *cloud.SDK

	// Shared 以 shared 属性暴露，提供跨调用的键值存取
	Shared *jsShared
}

func (c *jsCloud) Database() *jsDatabase {
	return &jsDatabase{ctx: c.ctx, db: c.sdk.Database}
}

func (c *jsCloud) Storage(namespace string) *jsStorage {
	return &jsStorage{ctx: c.ctx, store: c.sdk.Storage(namespace)}
}

func (c *jsCloud) Fetch(url string, opts map[string]interface{}) (map[string]interface{}, error) {
	return c.sdk.Fetch(c.ctx, url, opts)
}

func (c *jsCloud) Invoke(name string, param map[string]interface{}) (interface{}, error) {
	return c.sdk.Invoke(c.ctx, name, param)
}

func (c *jsCloud) Emit(subject string, data interface{}) {
	c.sdk.Emit(c.ctx, subject, data)
}

func (c *jsCloud) GetToken(payload map[string]interface{}) (string, error) {
	return c.sdk.GetToken(payload)
}

func (c *jsCloud) ParseToken(token string) (map[string]interface{}, error) {
	return c.sdk.ParseToken(token)
}

// RawDatabase 暴露底层数据库连接句柄；内存部署形态下为 null。
func (c *jsCloud) RawDatabase() *sql.DB {
	return c.sdk.RawDB
}

// jsDatabase 是文档数据库能力的 JS 包装。
type jsDatabase struct {
	ctx context.Context
	db  store.DocumentDB
}

func (d *jsDatabase) Collection(name string) *jsCollection {
	return &jsCollection{ctx: d.ctx, col: d.db.Collection(name)}
}

type jsCollection struct {
	ctx context.Context
	col store.Collection
}

func (c *jsCollection) Add(doc map[string]interface{}) (string, error) {
	return c.col.Add(c.ctx, doc)
}

func (c *jsCollection) Where(filter map[string]interface{}) *jsQuery {
	return &jsQuery{ctx: c.ctx, q: c.col.Where(filter)}
}

type jsQuery struct {
	ctx context.Context
	q   store.Query
}

func (q *jsQuery) GetOne() (map[string]interface{}, error) {
	return q.q.GetOne(q.ctx)
}

func (q *jsQuery) Get() ([]map[string]interface{}, error) {
	return q.q.Get(q.ctx)
}

// jsStorage 是对象存储能力的 JS 包装，内容以字符串存取。
type jsStorage struct {
	ctx   context.Context
	store blob.Store
}

func (s *jsStorage) Get(key string) (string, error) {
	data, err := s.store.Get(s.ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *jsStorage) Put(key, data string) error {
	return s.store.Put(s.ctx, key, []byte(data))
}

func (s *jsStorage) List(prefix string) ([]string, error) {
	return s.store.List(s.ctx, prefix)
}

func (s *jsStorage) Delete(key string) error {
	return s.store.Delete(s.ctx, key)
}

// jsShared 是共享偏好存储的 JS 包装。
type jsShared struct {
	prefs *shared.Preferences
}

func (s *jsShared) Get(key string) interface{} {
	v, _ := s.prefs.Get(key)
	return v
}

func (s *jsShared) Set(key string, value interface{}) {
	s.prefs.Set(key, value)
}

func (s *jsShared) Has(key string) bool {
	return s.prefs.Has(key)
}

func (s *jsShared) Delete(key string) {
	s.prefs.Delete(key)
}

var _ Runtime = (*GojaRuntime)(nil)
