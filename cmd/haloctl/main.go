// Package main 是 haloctl 命令行工具的入口点。
// haloctl 用于管理云函数引擎中的函数：创建、列出、调用、删除以及查看审计日志。
package main

import (
	"os"

	"github.com/halofn/halo/cmd/haloctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
