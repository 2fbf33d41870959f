// Package metrics 提供 Prometheus 指标采集与上报的统一封装。
// 该包集中定义引擎关键指标（调用、编译、审计、共享状态等），便于在各模块复用并保持标签一致。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 封装引擎运行时指标集合。
// 所有字段均为 Prometheus 指标类型，通过辅助方法更新指标值。
//
// 指标分类:
//   - 调用指标: 跟踪函数调用的数量、耗时和错误（含嵌套调用）
//   - 编译指标: 统计 TypeScript 编译的次数与结果
//   - 审计指标: 跟踪审计记录写入失败
//   - 函数/状态指标: 统计注册的函数数量与共享状态规模
type Metrics struct {
	// ========== 调用相关指标 ==========

	// InvocationsTotal 函数调用总次数计数器
	// 标签: function_id, function_name, runtime, status
	InvocationsTotal *prometheus.CounterVec

	// InvocationDuration 函数调用耗时直方图（单位：毫秒）
	// 标签: function_id, function_name, runtime
	// 桶边界: 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000 ms
	InvocationDuration *prometheus.HistogramVec

	// InvocationErrors 调用错误计数器，按错误类型分类
	// 标签: function_id, function_name, error_type
	InvocationErrors *prometheus.CounterVec

	// NestedInvocationsTotal 嵌套调用（函数调用函数）总次数计数器
	// 标签: function_name（被调函数）
	NestedInvocationsTotal *prometheus.CounterVec

	// InvocationDepth 嵌套调用深度直方图
	InvocationDepth prometheus.Histogram

	// ========== 编译相关指标 ==========

	// CompilationsTotal 编译总次数计数器
	// 标签: status (ok/failed)
	CompilationsTotal *prometheus.CounterVec

	// ========== 审计相关指标 ==========

	// AuditWriteFailures 审计记录写入失败计数器。
	// 审计失败不阻断调用，这个计数器是发现审计缺口的唯一信号。
	AuditWriteFailures prometheus.Counter

	// ========== 函数/状态相关指标 ==========

	// FunctionsTotal 注册的函数总数
	FunctionsTotal prometheus.Gauge

	// SharedEntries 共享偏好存储中的键数量
	SharedEntries prometheus.Gauge
}

// NewMetrics 创建并注册一组 Prometheus 指标。
// namespace 用于作为所有指标名前缀，便于在同一 Prometheus 中区分不同应用。
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		InvocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of function invocations",
			},
			[]string{"function_id", "function_name", "runtime", "status"},
		),
		InvocationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_ms",
				Help:      "Function invocation duration in milliseconds",
				Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"function_id", "function_name", "runtime"},
		),
		InvocationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocation_errors_total",
				Help:      "Total number of invocation errors",
			},
			[]string{"function_id", "function_name", "error_type"},
		),
		NestedInvocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nested_invocations_total",
				Help:      "Total number of function-to-function invocations",
			},
			[]string{"function_name"},
		),
		InvocationDepth: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_depth",
				Help:      "Nesting depth of function invocations",
				Buckets:   []float64{1, 2, 3, 4, 6, 8},
			},
		),
		CompilationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compilations_total",
				Help:      "Total number of TypeScript compilations",
			},
			[]string{"status"},
		),
		AuditWriteFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_write_failures_total",
				Help:      "Total number of audit log persistence failures",
			},
		),
		FunctionsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "functions_total",
				Help:      "Total number of registered functions",
			},
		),
		SharedEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "shared_entries",
				Help:      "Number of keys in the shared preference store",
			},
		),
	}
}

// RecordInvocation 记录一次函数调用的统计信息。
// durationMs 为调用耗时（毫秒）。
func (m *Metrics) RecordInvocation(functionID, functionName, runtime, status string, durationMs float64) {
	m.InvocationsTotal.WithLabelValues(functionID, functionName, runtime, status).Inc()
	m.InvocationDuration.WithLabelValues(functionID, functionName, runtime).Observe(durationMs)
}

// RecordError 记录一次调用错误（按 error_type 聚合）。
func (m *Metrics) RecordError(functionID, functionName, errorType string) {
	m.InvocationErrors.WithLabelValues(functionID, functionName, errorType).Inc()
}

// RecordNestedInvocation 记录一次嵌套调用及其深度。
func (m *Metrics) RecordNestedInvocation(calleeName string, depth int) {
	m.NestedInvocationsTotal.WithLabelValues(calleeName).Inc()
	m.InvocationDepth.Observe(float64(depth))
}

// RecordCompilation 记录一次编译结果。
func (m *Metrics) RecordCompilation(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.CompilationsTotal.WithLabelValues(status).Inc()
}

// RecordAuditWriteFailure 记录一次审计写入失败。
func (m *Metrics) RecordAuditWriteFailure() {
	m.AuditWriteFailures.Inc()
}

// UpdateFunctionsTotal 更新注册函数总数。
func (m *Metrics) UpdateFunctionsTotal(count int) {
	m.FunctionsTotal.Set(float64(count))
}

// UpdateSharedEntries 更新共享偏好存储的键数量。
func (m *Metrics) UpdateSharedEntries(count int) {
	m.SharedEntries.Set(float64(count))
}
