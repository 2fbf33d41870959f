// Package engine 提供沙箱执行运行时。
// 运行时负责在隔离环境中执行编译产物，并把能力包暴露给函数代码。
// 有两个变体：进程内 JS 解释器（goja）和 WebAssembly（wazero）。
package engine

import (
	"context"
	"time"

	"github.com/halofn/halo/internal/cloud"
	"github.com/halofn/halo/internal/domain"
)

// Options 是单次执行的预算。
type Options struct {
	// Timeout 是执行时间预算，超出后执行以超时失败
	Timeout time.Duration
	// MaxLogLines 是单次执行可产生的最大日志行数，超出部分被丢弃
	MaxLogLines int
}

// Runtime 是沙箱运行时的接口。
// Execute 在隔离环境中执行编译产物：fnCtx 作为调用上下文传入函数入口，
// sdk 是本次调用的能力包。每次执行使用全新的沙箱实例，互不串扰。
type Runtime interface {
	// Name 返回运行时变体名（用于指标标签）
	Name() string
	// Execute 执行编译产物并返回结构化结果；
	// 执行失败（运行时异常、超时）返回包装了 ErrExecutionFailed 的错误
	Execute(ctx context.Context, code string, fnCtx domain.FunctionContext, sdk *cloud.SDK, opts Options) (*domain.ExecutionResult, error)
}
