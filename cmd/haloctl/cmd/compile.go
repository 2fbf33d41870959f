// Package cmd 提供 haloctl 命令行工具的所有子命令实现。
// 本文件实现 compile 命令，用于在不创建函数的情况下做语法预检。
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var compileCmd = &cobra.Command{
	Use:   "compile <file>",
	Short: "Compile a TypeScript source file without creating a function",
	Long: `Compile a TypeScript source file server-side and print the result.

Useful as a syntax pre-check before creating or updating a function.

Examples:
  haloctl compile greet.ts
  haloctl compile greet.ts --print`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

var compilePrint bool

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().BoolVar(&compilePrint, "print", false, "Print the compiled JavaScript")
}

func runCompile(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	client := NewClient()
	compiled, err := client.CompileSource(string(source))
	if err != nil {
		return err
	}

	if compilePrint {
		fmt.Println(compiled)
	} else {
		fmt.Printf("%s compiles cleanly.\n", args[0])
	}
	return nil
}
