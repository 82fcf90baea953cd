/*
 * @author: sun977
 * @date: 2026.08.17
 * @description: 目标列表扫描子命令
 */

package scan

import (
	"github.com/spf13/cobra"
)

// NewListScanCmd 创建 list 子命令
func NewListScanCmd() *cobra.Command {
	var targetsFile string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "扫描目标列表文件并逐主机上传",
		Long: `读取目标列表文件(每行一个目标，# 开头为注释)，执行一次聚合扫描，
结果按主机拆分后分别导入各自的产品/Engagement。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd)
			if err != nil {
				return err
			}

			opts := buildOptions(cfg)
			opts.TargetsFile = targetsFile
			if err := opts.Validate(); err != nil {
				return err
			}

			return runScan(opts, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&targetsFile, "targets", "l", "", "目标列表文件路径")
	cmd.MarkFlagRequired("targets")

	return cmd
}
