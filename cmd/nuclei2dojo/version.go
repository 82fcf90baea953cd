/*
 * @author: sun977
 * @date: 2026.08.17
 * @description: 版本信息命令
 */

package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags 注入
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// NewVersionCmd 创建 version 命令
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nuclei2dojo %s\n", Version)
			fmt.Printf("  commit:     %s\n", GitCommit)
			fmt.Printf("  built:      %s\n", BuildTime)
			fmt.Printf("  go version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
