// Package cmd 提供 haloctl 命令行工具的所有子命令实现。
// 本文件实现 invoke 命令，用于同步调用函数并展示结果与执行日志。
//
// 调用参数可以通过 --data 标志、--file 文件或标准输入提供，
// 作为 ctx.body 传给函数。
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <name>",
	Short: "Invoke a function",
	Long: `Invoke a function synchronously and wait for the result.

When several functions share a name, the earliest-created one is invoked.

Examples:
  # Invoke with JSON data
  haloctl invoke greet --data '{"name": "World"}'

  # Invoke with data from file
  haloctl invoke greet --file event.json

  # Invoke from stdin
  echo '{"name": "World"}' | haloctl invoke greet`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

var (
	invokeData string
	invokeFile string
)

func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().StringVarP(&invokeData, "data", "d", "", "JSON payload")
	invokeCmd.Flags().StringVarP(&invokeFile, "file", "f", "", "JSON payload file")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	name := args[0]

	var payload json.RawMessage
	switch {
	case invokeData != "":
		payload = json.RawMessage(invokeData)
	case invokeFile != "":
		data, err := os.ReadFile(invokeFile)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		payload = data
	default:
		// 允许通过管道传入请求体
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			if len(data) > 0 {
				payload = data
			}
		}
	}

	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("invalid JSON payload")
	}

	client := NewClient()

	start := time.Now()
	resp, err := client.InvokeFunction(name, payload)
	if err != nil {
		return err
	}

	if viper.GetString("output") == "json" {
		return printJSON(resp)
	}

	fmt.Printf("Function '%s' invoked.\n\n", name)
	fmt.Printf("Request ID: %s\n", resp.RequestID)
	fmt.Printf("Duration:   %d ms (total: %s)\n", resp.TimeUsage, time.Since(start).Round(time.Millisecond))

	if len(resp.Logs) > 0 {
		fmt.Println("\nLogs:")
		for _, line := range resp.Logs {
			fmt.Printf("  %s\n", line)
		}
	}

	if len(resp.Value) > 0 && string(resp.Value) != "null" {
		fmt.Println("\nResult:")
		var obj interface{}
		if json.Unmarshal(resp.Value, &obj) == nil {
			pretty, _ := json.MarshalIndent(obj, "", "  ")
			fmt.Println(string(pretty))
		} else {
			fmt.Println(string(resp.Value))
		}
	}

	return nil
}
