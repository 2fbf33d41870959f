// Package cmd 提供 haloctl 命令行工具的所有子命令实现。
// 本文件实现 get 命令，用于查看单个函数的详情。
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var getCmd = &cobra.Command{
	Use:   "get <id-or-name>",
	Short: "Show function details",
	Long: `Show details of a single function.

The argument is tried as an ID first, then as a name.

Examples:
  haloctl get greet
  haloctl get 2f1e9c3a-... -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var getShowSource bool

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&getShowSource, "source", false, "Print the TypeScript source")
}

func runGet(cmd *cobra.Command, args []string) error {
	client := NewClient()

	fn, err := client.GetFunction(args[0])
	if err != nil {
		fn, err = client.GetFunctionByName(args[0])
	}
	if err != nil {
		return err
	}

	if viper.GetString("output") == "json" {
		return printJSON(fn)
	}

	fmt.Printf("Name:        %s\n", fn.Name)
	fmt.Printf("ID:          %s\n", fn.ID)
	fmt.Printf("Status:      %s\n", fn.Status)
	fmt.Printf("Version:     %d\n", fn.Version)
	if fn.Description != "" {
		fmt.Printf("Description: %s\n", fn.Description)
	}
	if len(fn.Tags) > 0 {
		fmt.Printf("Tags:        %s\n", strings.Join(fn.Tags, ", "))
	}
	if fn.CronExpression != "" {
		fmt.Printf("Cron:        %s\n", fn.CronExpression)
	}
	fmt.Printf("Created:     %s\n", fn.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:     %s\n", fn.UpdatedAt.Format("2006-01-02 15:04:05"))

	if getShowSource && fn.Source != "" {
		fmt.Println("\nSource:")
		fmt.Println(fn.Source)
	}
	return nil
}
