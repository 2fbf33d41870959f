package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/halofn/halo/internal/cloud"
	"github.com/halofn/halo/internal/domain"
)

// WasmRuntime 是基于 WebAssembly 的运行时变体。
// 编译产物是 base64 编码的 wasm 二进制，模块需导出 alloc 和 handle：
// 调用上下文以 JSON 写入模块内存，返回值从打包指针读出并按 JSON 解析。
// 该变体不注入能力包（wasm 模块只有 WASI 基础能力），stdout 按行收集为日志。
type WasmRuntime struct {
	logger *logrus.Logger
}

// NewWasmRuntime 创建 wasm 运行时。
func NewWasmRuntime(logger *logrus.Logger) *WasmRuntime {
	return &WasmRuntime{logger: logger}
}

// Name 返回运行时变体名。
func (r *WasmRuntime) Name() string {
	return "wasm"
}

// Execute 在新的 wazero 实例中执行 wasm 模块。
func (r *WasmRuntime) Execute(ctx context.Context, code string, fnCtx domain.FunctionContext, sdk *cloud.SDK, opts Options) (*domain.ExecutionResult, error) {
	start := time.Now()

	wasmBytes, err := base64.StdEncoding.DecodeString(code)
	if err != nil {
		return nil, fmt.Errorf("%w: decode wasm: %v", domain.ErrExecutionFailed, err)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	defer runtime.Close(context.Background())

	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	module, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: compile wasm: %v", domain.ErrExecutionFailed, err)
	}

	var stdout, stderr bytes.Buffer
	instance, err := runtime.InstantiateModule(ctx, module, wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(&stderr))
	if err != nil {
		return nil, r.wrapWasmError(ctx, "instantiate", err)
	}
	defer instance.Close(context.Background())

	alloc := instance.ExportedFunction("alloc")
	handle := instance.ExportedFunction("handle")
	if alloc == nil || handle == nil {
		return nil, fmt.Errorf("%w: wasm module must export 'alloc' and 'handle'", domain.ErrExecutionFailed)
	}

	payload, err := json.Marshal(contextArg(fnCtx))
	if err != nil {
		return nil, fmt.Errorf("%w: marshal context: %v", domain.ErrExecutionFailed, err)
	}

	results, err := alloc.Call(ctx, uint64(len(payload)))
	if err != nil {
		return nil, r.wrapWasmError(ctx, "alloc", err)
	}
	inputPtr := uint32(results[0])

	memory := instance.Memory()
	if !memory.Write(inputPtr, payload) {
		return nil, fmt.Errorf("%w: input does not fit in module memory", domain.ErrExecutionFailed)
	}

	results, err = handle.Call(ctx, uint64(inputPtr), uint64(len(payload)))
	if err != nil {
		return nil, r.wrapWasmError(ctx, "handle", err)
	}

	// 返回值是打包指针：高 32 位为偏移量，低 32 位为长度
	packed := results[0]
	outPtr := uint32(packed >> 32)
	outLen := uint32(packed & 0xFFFFFFFF)

	output, ok := memory.Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("%w: output pointer out of range", domain.ErrExecutionFailed)
	}

	var value interface{}
	if err := json.Unmarshal(output, &value); err != nil {
		value = string(output)
	}

	result := &domain.ExecutionResult{
		Value:     value,
		Logs:      collectLines(&stdout, opts.MaxLogLines),
		TimeUsage: time.Since(start).Milliseconds(),
	}

	r.logger.WithFields(logrus.Fields{
		"request_id": fnCtx.RequestID,
		"time_usage": result.TimeUsage,
	}).Debug("Wasm execution finished")

	return result, nil
}

// wrapWasmError 把 wazero 错误归一到领域错误分类。
func (r *WasmRuntime) wrapWasmError(ctx context.Context, stage string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrExecutionTimeout
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrExecutionFailed, stage, err)
}

// collectLines 把 stdout 内容按行切分为日志。
func collectLines(buf *bytes.Buffer, max int) []string {
	text := strings.TrimRight(buf.String(), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if max > 0 && len(lines) > max {
		lines = lines[:max]
	}
	return lines
}

var _ Runtime = (*WasmRuntime)(nil)
