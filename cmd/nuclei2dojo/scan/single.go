/*
 * @author: sun977
 * @date: 2026.08.17
 * @description: 单目标扫描子命令
 */

package scan

import (
	"github.com/spf13/cobra"
)

// NewSingleScanCmd 创建 single 子命令
func NewSingleScanCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "single",
		Short: "扫描单个目标并上传",
		Long:  `对单个目标执行扫描，结果导入该主机对应的产品/Engagement。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd)
			if err != nil {
				return err
			}

			opts := buildOptions(cfg)
			opts.Target = target
			if err := opts.Validate(); err != nil {
				return err
			}

			return runScan(opts, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&target, "target", "t", "", "扫描目标 (URL 或 host)")
	cmd.MarkFlagRequired("target")

	return cmd
}
