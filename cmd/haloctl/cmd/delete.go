// Package cmd 提供 haloctl 命令行工具的所有子命令实现。
// 本文件实现 delete 命令，用于删除函数。
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <id-or-name>",
	Aliases: []string{"rm"},
	Short:   "Delete a function",
	Long: `Delete a function and remove its cron trigger.

Examples:
  haloctl delete greet
  haloctl delete greet --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var deleteForce bool

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	client := NewClient()

	fn, err := client.GetFunction(args[0])
	if err != nil {
		fn, err = client.GetFunctionByName(args[0])
	}
	if err != nil {
		return err
	}

	if !deleteForce {
		fmt.Printf("Delete function '%s' (%s)? [y/N] ", fn.Name, fn.ID)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := client.DeleteFunction(fn.ID); err != nil {
		return err
	}

	fmt.Printf("Function '%s' deleted.\n", fn.Name)
	return nil
}
