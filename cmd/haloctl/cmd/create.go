// Package cmd 提供 haloctl 命令行工具的所有子命令实现。
// 本文件实现 create 命令，用于从 TypeScript 源文件创建函数。
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a function from a TypeScript source file",
	Long: `Create a function from a TypeScript source file.

The source is compiled server-side at creation time; syntax errors are
rejected immediately.

Examples:
  # Create from a file
  haloctl create greet --file greet.ts

  # Create with a cron trigger (six fields, seconds first)
  haloctl create tick --file tick.ts --cron "0 */5 * * * *"

  # Create with tags and a description
  haloctl create greet --file greet.ts --tags demo,http --description "Greets the caller"`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

var (
	createFile        string
	createDescription string
	createTags        string
	createCron        string
)

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "TypeScript source file (required)")
	createCmd.Flags().StringVar(&createDescription, "description", "", "Function description")
	createCmd.Flags().StringVar(&createTags, "tags", "", "Comma-separated tags")
	createCmd.Flags().StringVar(&createCron, "cron", "", "Cron expression for scheduled invocation")
	createCmd.MarkFlagRequired("file")
}

func runCreate(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(createFile)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	req := &CreateFunctionRequest{
		Name:           args[0],
		Description:    createDescription,
		Source:         string(source),
		CronExpression: createCron,
	}
	if createTags != "" {
		for _, tag := range strings.Split(createTags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				req.Tags = append(req.Tags, tag)
			}
		}
	}

	client := NewClient()
	fn, err := client.CreateFunction(req)
	if err != nil {
		return err
	}

	fmt.Printf("Function '%s' created.\n", fn.Name)
	fmt.Printf("ID:      %s\n", fn.ID)
	fmt.Printf("Version: %d\n", fn.Version)
	if fn.CronExpression != "" {
		fmt.Printf("Cron:    %s\n", fn.CronExpression)
	}
	return nil
}
