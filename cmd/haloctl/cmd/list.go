// Package cmd 提供 haloctl 命令行工具的所有子命令实现。
// 本文件实现 list 命令，用于列出引擎中的所有函数。
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all functions",
	Long: `List all functions registered in the engine.

Examples:
  # List all functions
  haloctl list

  # Output as JSON
  haloctl list -o json

  # Filter by name or tag
  haloctl list --search greet`,
	RunE: runList,
}

var listSearch string

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listSearch, "search", "q", "", "Search by name, id or tag")
}

func runList(cmd *cobra.Command, args []string) error {
	client := NewClient()
	functions, err := client.ListFunctions()
	if err != nil {
		return err
	}

	if listSearch != "" {
		query := strings.ToLower(listSearch)
		filtered := make([]Function, 0, len(functions))
		for _, fn := range functions {
			if matchesQuery(fn, query) {
				filtered = append(filtered, fn)
			}
		}
		functions = filtered
	}

	if viper.GetString("output") == "json" {
		return printJSON(functions)
	}

	if len(functions) == 0 {
		fmt.Println("No functions found.")
		return nil
	}

	w := newTabWriter()
	fmt.Fprintln(w, "NAME\tID\tSTATUS\tVERSION\tCRON\tUPDATED")
	for _, fn := range functions {
		cron := fn.CronExpression
		if cron == "" {
			cron = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			fn.Name, fn.ID, fn.Status, fn.Version, cron, fn.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func matchesQuery(fn Function, query string) bool {
	if strings.Contains(strings.ToLower(fn.Name), query) ||
		strings.Contains(strings.ToLower(fn.ID), query) {
		return true
	}
	for _, tag := range fn.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
