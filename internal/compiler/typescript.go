// Package compiler 负责将函数的 TypeScript 源码编译为可执行的 JavaScript。
// 编译发生在函数创建/更新时（而非调用时），产物随定义一起持久化。
package compiler

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/halofn/halo/internal/domain"
)

// Compile 将 TypeScript 源码转换为 CommonJS 格式的 JavaScript。
// 只做语法级转换，不做类型检查：类型错误的源码只要语法合法就能编译通过。
// 同一份源码多次编译产出完全相同的结果。
func Compile(source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader: api.LoaderTS,
		Format: api.FormatCommonJS,
		Target: api.ES2017,
	})

	if len(result.Errors) > 0 {
		return "", fmt.Errorf("%w: %s", domain.ErrCompileFailed, formatMessages(result.Errors))
	}
	return string(result.Code), nil
}

// formatMessages 将 esbuild 的诊断信息拼成单行错误描述。
func formatMessages(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
		} else {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "; ")
}
