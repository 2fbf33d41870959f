// Package cmd 包含 haloctl CLI 工具的所有命令实现。
// 使用 cobra 框架构建命令行接口，viper 负责配置与环境变量。
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 全局命令行标志变量
var (
	cfgFile   string // 配置文件路径
	apiURL    string // API 服务器地址
	outputFmt string // 输出格式（table/json）
)

// rootCmd 是 CLI 的根命令，所有子命令都挂载在它下面。
var rootCmd = &cobra.Command{
	Use:   "haloctl",
	Short: "Halo - cloud function engine CLI",
	Long: `haloctl 是用于管理 Halo 云函数引擎的命令行工具。

使用示例:
  # 从 TypeScript 文件创建函数
  haloctl create greet --file greet.ts

  # 列出所有函数
  haloctl list

  # 调用函数
  haloctl invoke greet --data '{"name": "World"}'

  # 查看最近的调用日志
  haloctl logs --recent`,
}

// Execute 执行根命令，由 main 包调用。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认为 $HOME/.haloctl.yaml）")
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "u", "http://localhost:8080", "API 服务器地址")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "输出格式（table、json）")

	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

// initConfig 按优先级加载配置：命令行标志 > 环境变量 > 配置文件。
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".haloctl")
	}

	// 环境变量格式：HALO_<KEY>，如 HALO_API_URL
	viper.SetEnvPrefix("HALO")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}
