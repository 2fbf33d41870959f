// Package cmd 提供 haloctl 命令行工具的所有子命令实现。
// 本文件包含输出辅助函数：JSON 打印与表格输出。
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
)

// printJSON 以缩进 JSON 格式打印任意数据。
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// newTabWriter 返回用于表格输出的 tabwriter。
func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}
