package faas

import (
	"context"
	"fmt"

	"github.com/halofn/halo/internal/domain"
)

// InvokeNested 是沙箱 invoke 能力的落点：函数调用函数的完整路径。
// 步骤：递归防护 → 按名解析 → 执行 → 注入追踪行 → 写审计记录 → 返回结果。
// 追踪行固定为首行，审计失败记录并继续。
func (s *Service) InvokeNested(ctx context.Context, name string, fnCtx domain.FunctionContext) (*domain.ExecutionResult, error) {
	if s.maxDepth > 0 && fnCtx.Depth > s.maxDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds limit %d", domain.ErrRecursionLimit, fnCtx.Depth, s.maxDepth)
	}

	fn, err := s.repo.GetByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get function %q: %w", name, err)
	}
	if !fn.Status.CanInvoke() {
		return nil, fmt.Errorf("%w: function %q is inactive", domain.ErrFunctionNotFound, fn.Name)
	}

	// 合成的请求标识由被调函数的 ID 派生，而不是沿用调用方的
	fnCtx.RequestID = "func_" + fn.ID
	fnCtx.Normalize()

	res, err := s.Execute(ctx, fn, fnCtx)
	if err != nil {
		return nil, err
	}

	trace := fmt.Sprintf("invoked in function: %s (%s)", fn.Name, fn.ID)
	res.Logs = append([]string{trace}, res.Logs...)

	s.metrics.RecordNestedInvocation(fn.Name, fnCtx.Depth)
	s.audit(fn, fnCtx.RequestID, res)

	return res, nil
}
