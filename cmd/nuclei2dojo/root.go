/*
 * @author: sun977
 * @date: 2026.08.17
 * @description: Cobra Root Command 定义
 */

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/BananaMoustache/nuclei2dojo/cmd/nuclei2dojo/scan"
	"github.com/BananaMoustache/nuclei2dojo/internal/config"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/logger"
)

var (
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nuclei2dojo",
	Short: "nuclei 扫描结果上传 DefectDojo 的编排工具",
	Long: `nuclei2dojo 串联 httpx 指纹探测、nuclei 漏洞扫描和 DefectDojo 记录库。
按目标技术栈推导扫描标签，把扫描结果按主机拆分后逐一导入对应的产品/Engagement，
重复运行时走 reimport 去重。

示例:
  1.扫描目标列表并上传(带指纹画像)
	nuclei2dojo scan list -l targets.txt --profile httpx --dd-token <token>
  2.单目标扫描
	nuclei2dojo scan single -t https://example.com --severity high,critical
  3.单模板定向扫描(只扫指纹命中的主机)
	nuclei2dojo scan list -l targets.txt --cve-template cves/CVE-2024-0001.yaml --cve-auto-filter
`,
	// PersistentPreRun: 全局初始化逻辑，确保所有子命令都能使用日志
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initCLILogger(cmd)
	},
}

func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] nuclei2dojo crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// 全局 Flag
	// 配置文件和环境变量由 internal/config 的加载器统一处理
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "日志级别 (debug, info, warn, error)")

	// 注册子命令
	rootCmd.AddCommand(scan.NewScanCmd(func() string { return cfgFile }))
	rootCmd.AddCommand(NewVersionCmd())
}

// initCLILogger 初始化 CLI 模式下的日志
// 保证所有子命令都有格式化日志输出，受 --log-level 控制
func initCLILogger(cmd *cobra.Command) {
	flag := cmd.Flags().Lookup("log-level")
	level := "info"
	if flag != nil && flag.Changed {
		level = flag.Value.String()
	}

	// 配置 pterm
	switch level {
	case "debug":
		pterm.EnableDebugMessages()
	case "info":
		pterm.DisableDebugMessages()
	case "warn", "error", "fatal":
		pterm.DisableDebugMessages()
		pterm.Info = *pterm.Info.WithWriter(io.Discard)
	}

	logConfig := &config.LogConfig{
		Level:  level,
		Format: "text",
		Output: "stdout",
		Caller: false,
	}

	// 初始化日志
	if _, err := logger.InitLogger(logConfig); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
	}
}
