// Package faas 是调用编排层。
// 它把解析、执行、审计与递归防护串成完整的调用路径：
// 顶层调用来自 HTTP 入口和定时触发器，嵌套调用来自沙箱里的 invoke 能力。
package faas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/cloud"
	"github.com/halofn/halo/internal/domain"
	"github.com/halofn/halo/internal/engine"
	"github.com/halofn/halo/internal/events"
	"github.com/halofn/halo/internal/metrics"
)

// Service 是调用编排器。
// 它持有运行时、能力包工厂和存储仓库；进程内只构造一个实例，
// 并通过 Factory.BindInvoke 把自身的嵌套调用路径绑定回能力包。
type Service struct {
	runtime  engine.Runtime
	factory  *cloud.Factory
	repo     domain.FunctionRepository
	logs     domain.FunctionLogRepository
	bus      events.Bus
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	opts     engine.Options
	maxDepth int
}

// NewService 创建调用编排器，并把嵌套调用路径绑定到能力包工厂。
func NewService(runtime engine.Runtime, factory *cloud.Factory, repo domain.FunctionRepository,
	logs domain.FunctionLogRepository, bus events.Bus, m *metrics.Metrics, logger *logrus.Logger,
	opts engine.Options, maxDepth int) *Service {
	s := &Service{
		runtime:  runtime,
		factory:  factory,
		repo:     repo,
		logs:     logs,
		bus:      bus,
		metrics:  m,
		logger:   logger,
		opts:     opts,
		maxDepth: maxDepth,
	}
	factory.BindInvoke(s.InvokeNested)
	return s
}

// Execute 执行一次裸调用：不做解析、不写审计，只负责执行与指标。
// 调用方需保证 fn 可调用且 fnCtx 已带好请求标识。
func (s *Service) Execute(ctx context.Context, fn *domain.Function, fnCtx domain.FunctionContext) (*domain.ExecutionResult, error) {
	fnCtx.Normalize()

	sdk := s.factory.Build(fnCtx)
	res, err := s.runtime.Execute(ctx, fn.CompiledCode, fnCtx, sdk, s.opts)

	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.RecordError(fn.ID, fn.Name, errorType(err))
	}
	duration := float64(0)
	if res != nil {
		duration = float64(res.TimeUsage)
	}
	s.metrics.RecordInvocation(fn.ID, fn.Name, s.runtime.Name(), status, duration)

	return res, err
}

// Invoke 执行一次顶层调用（HTTP 入口或定时触发）：
// 执行后写一条审计记录，审计失败不影响已完成的执行结果。
func (s *Service) Invoke(ctx context.Context, fn *domain.Function, fnCtx domain.FunctionContext) (*domain.ExecutionResult, error) {
	if !fn.Status.CanInvoke() {
		return nil, fmt.Errorf("%w: function %q is inactive", domain.ErrFunctionNotFound, fn.Name)
	}

	res, err := s.Execute(ctx, fn, fnCtx)
	if err != nil {
		return nil, err
	}

	s.audit(fn, fnCtx.RequestID, res)
	return res, nil
}

// audit 持久化一条审计记录。策略：记录并继续，绝不回滚执行结果。
func (s *Service) audit(fn *domain.Function, requestID string, res *domain.ExecutionResult) {
	now := time.Now()
	entry := &domain.FunctionLog{
		ID:        uuid.New().String(),
		RequestID: requestID,
		FuncID:    fn.ID,
		FuncName:  fn.Name,
		Logs:      res.Logs,
		TimeUsage: res.TimeUsage,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: fn.ID,
	}
	if err := s.logs.Insert(entry); err != nil {
		s.metrics.RecordAuditWriteFailure()
		s.logger.WithError(err).WithFields(logrus.Fields{
			"func_id":    fn.ID,
			"request_id": requestID,
		}).Error("Failed to persist invocation audit log")
	}

	// 调用完成事件尽力而为，失败不影响已完成的执行
	if s.bus != nil {
		if err := s.bus.PublishInvocationCompleted(context.Background(), entry); err != nil {
			s.logger.WithError(err).WithField("func_id", fn.ID).Warn("Failed to publish invocation.completed event")
		}
	}
}

// errorType 把领域错误映射为指标的 error_type 标签值。
func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrExecutionTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrExecutionFailed):
		return "execution"
	case errors.Is(err, domain.ErrRecursionLimit):
		return "recursion_limit"
	case errors.Is(err, domain.ErrFunctionNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
