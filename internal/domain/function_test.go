// Package domain 定义了云函数引擎的核心领域模型。
package domain

import (
	"errors"
	"strings"
	"testing"
)

// TestCreateFunctionRequest_Validate 测试 CreateFunctionRequest 的验证方法。
// 该测试覆盖了各种有效和无效的输入场景，包括：
// - 有效的请求参数
// - 无效的函数名称（为空或超长）
// - 源代码为空或超出大小限制
// - 无效的 cron 表达式
func TestCreateFunctionRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateFunctionRequest
		wantErr error
	}{
		{
			name: "valid request",
			req: CreateFunctionRequest{
				Name:   "greet",
				Source: "export function main() { return { msg: 'hi' } }",
			},
			wantErr: nil,
		},
		{
			name: "valid request with cron",
			req: CreateFunctionRequest{
				Name:           "tick",
				Source:         "export function main() { return null }",
				CronExpression: "0 */5 * * * *",
			},
			wantErr: nil,
		},
		{
			name:    "empty name",
			req:     CreateFunctionRequest{Name: "", Source: "export function main() {}"},
			wantErr: ErrInvalidFunctionName,
		},
		{
			name:    "name too long",
			req:     CreateFunctionRequest{Name: strings.Repeat("a", 65), Source: "x"},
			wantErr: ErrInvalidFunctionName,
		},
		{
			name:    "empty source",
			req:     CreateFunctionRequest{Name: "greet", Source: ""},
			wantErr: ErrInvalidSource,
		},
		{
			name:    "source too large",
			req:     CreateFunctionRequest{Name: "big", Source: strings.Repeat("x", MaxSourceSize+1)},
			wantErr: ErrSourceSizeExceeded,
		},
		{
			name:    "invalid cron expression",
			req:     CreateFunctionRequest{Name: "tick", Source: "x", CronExpression: "not a cron"},
			wantErr: ErrInvalidCronExpression,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestFunctionContext_Normalize 测试调用上下文的规范化。
// Method 为空时填充 "call"，已设置时不改写；重复调用幂等。
func TestFunctionContext_Normalize(t *testing.T) {
	ctx := &FunctionContext{}
	ctx.Normalize()
	if ctx.Method != "call" {
		t.Errorf("Normalize() Method = %q, want %q", ctx.Method, "call")
	}

	// 幂等性
	ctx.Normalize()
	if ctx.Method != "call" {
		t.Errorf("Normalize() not idempotent, Method = %q", ctx.Method)
	}

	// 已设置的 Method 不被改写
	ctx2 := &FunctionContext{Method: "trigger"}
	ctx2.Normalize()
	if ctx2.Method != "trigger" {
		t.Errorf("Normalize() overwrote Method, got %q", ctx2.Method)
	}
}

// TestExecutionTimeout_IsExecutionFailed 验证超时错误属于执行失败类别。
// 调用方只需用 errors.Is(err, ErrExecutionFailed) 即可捕获所有执行失败。
func TestExecutionTimeout_IsExecutionFailed(t *testing.T) {
	if !errors.Is(ErrExecutionTimeout, ErrExecutionFailed) {
		t.Error("ErrExecutionTimeout should match ErrExecutionFailed")
	}
}

// TestFunctionStatus_CanInvoke 测试函数状态的可调用性判断。
func TestFunctionStatus_CanInvoke(t *testing.T) {
	if !FunctionStatusActive.CanInvoke() {
		t.Error("active function should be invokable")
	}
	if FunctionStatusInactive.CanInvoke() {
		t.Error("inactive function should not be invokable")
	}
}
