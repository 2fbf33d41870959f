// Package cmd 提供 haloctl 命令行工具的所有子命令实现。
// 本文件实现 logs 命令，用于查看调用审计日志。
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logsCmd = &cobra.Command{
	Use:   "logs [id-or-name]",
	Short: "Show invocation audit logs",
	Long: `Show invocation audit logs.

With an argument, shows the logs of that function; without one,
shows the most recent logs across all functions.

Examples:
  # Recent logs across the engine
  haloctl logs

  # Logs of a single function
  haloctl logs greet

  # More entries
  haloctl logs greet --limit 100`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

var logsLimit int

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "Maximum number of entries")
}

func runLogs(cmd *cobra.Command, args []string) error {
	client := NewClient()

	var entries []FunctionLog
	var err error
	if len(args) == 1 {
		fn, ferr := client.GetFunction(args[0])
		if ferr != nil {
			fn, ferr = client.GetFunctionByName(args[0])
		}
		if ferr != nil {
			return ferr
		}
		entries, err = client.ListFunctionLogs(fn.ID, logsLimit)
	} else {
		entries, err = client.ListRecentLogs(logsLimit)
	}
	if err != nil {
		return err
	}

	if viper.GetString("output") == "json" {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No logs found.")
		return nil
	}

	for _, entry := range entries {
		fmt.Printf("%s  %s (%s)  %d ms  request=%s\n",
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			entry.FuncName, entry.FuncID, entry.TimeUsage, entry.RequestID)
		for _, line := range entry.Logs {
			fmt.Printf("    %s\n", line)
		}
	}
	return nil
}
