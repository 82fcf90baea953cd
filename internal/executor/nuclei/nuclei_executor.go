/**
 * nuclei 扫描执行器
 * @author: sun977
 * @date: 2026.08.14
 * @description: 封装 nuclei 命令行调用，单目标和列表两种模式，JSON 导出文件作为结果通道
 * @func: Runner、ScanArgs、buildArgs
 */
package nuclei

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BananaMoustache/nuclei2dojo/internal/config"
	"github.com/BananaMoustache/nuclei2dojo/internal/executor/core"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/logger"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/utils"
)

// ScanArgs 单次扫描的参数
// 空字段不出现在命令行中
type ScanArgs struct {
	Target      string   // 单目标模式: 目标 URL/host
	TargetsFile string   // 列表模式: 目标列表文件路径，与 Target 互斥
	Severity    string   // -severity
	IncludeTags []string // -tags (逗号拼接)
	ExcludeTags []string // -exclude-tags
	// -exclude-templates (逗号拼接)
	ExcludeTemplates []string
	Templates        []string // -t 指定模板，设置后通常不再传 tags
	Headers          []string // -H 自定义请求头，可重复
	RateLimit        int      // -rl
	Concurrency      int      // -c
	Verbose          bool     // -v
	ExportPath       string   // -json-export 路径，为空时自动生成临时文件
}

// Runner nuclei 执行器
type Runner struct {
	cfg       *config.ToolConfig
	commander core.Commander
}

// NewRunner 创建 nuclei 执行器
func NewRunner(cfg *config.ToolConfig, commander core.Commander) *Runner {
	return &Runner{cfg: cfg, commander: commander}
}

// CheckBinary 检查 nuclei 可执行文件是否可用
func (r *Runner) CheckBinary() error {
	if _, err := r.commander.LookPath(r.cfg.BinPath); err != nil {
		return fmt.Errorf("nuclei binary not available, install it or set NUCLEI_BIN: %w", err)
	}
	return nil
}

// Scan 执行扫描，返回 JSON 导出文件路径
// 导出文件由调用方负责清理
func (r *Runner) Scan(ctx context.Context, args *ScanArgs) (string, error) {
	if args.Target == "" && args.TargetsFile == "" {
		return "", fmt.Errorf("scan requires a target or a targets file")
	}
	if args.Target != "" && args.TargetsFile != "" {
		return "", fmt.Errorf("target and targets file are mutually exclusive")
	}

	exportPath := args.ExportPath
	if exportPath == "" {
		mode := "single"
		if args.TargetsFile != "" {
			mode = "list"
		}
		exportPath = filepath.Join(os.TempDir(),
			fmt.Sprintf("nuclei_%s_%s.json", mode, strings.ReplaceAll(uuid.New().String(), "-", "")))
	}

	cmdArgs := buildArgs(args, exportPath)
	logger.Infof("Nuclei: %s %s", r.cfg.BinPath, strings.Join(cmdArgs, " "))

	output, err := r.commander.Run(ctx, r.cfg.BinPath, cmdArgs, r.cfg.Timeout)
	if err != nil {
		tail := utils.TailLines(string(output), 10)
		if tail != "" {
			logger.Errorf("Nuclei output tail:\n%s", tail)
		}
		return "", fmt.Errorf("nuclei scan failed: %w", err)
	}
	return exportPath, nil
}

// buildArgs 构造 nuclei 命令行参数
// 纯函数，便于测试
func buildArgs(args *ScanArgs, exportPath string) []string {
	var cmd []string
	if args.TargetsFile != "" {
		cmd = append(cmd, "-list", args.TargetsFile)
	} else {
		cmd = append(cmd, "-u", args.Target)
	}
	cmd = append(cmd, "-json-export", exportPath)

	if args.Severity != "" {
		cmd = append(cmd, "-severity", args.Severity)
	}
	for _, t := range args.Templates {
		cmd = append(cmd, "-t", t)
	}
	if len(args.IncludeTags) > 0 {
		cmd = append(cmd, "-tags", strings.Join(args.IncludeTags, ","))
	}
	if len(args.ExcludeTags) > 0 {
		cmd = append(cmd, "-exclude-tags", strings.Join(args.ExcludeTags, ","))
	}
	if joined := joinExcludeTemplates(args.ExcludeTemplates); joined != "" {
		cmd = append(cmd, "-exclude-templates", joined)
	}
	for _, h := range args.Headers {
		if h = strings.TrimSpace(h); h != "" {
			cmd = append(cmd, "-H", h)
		}
	}
	if args.RateLimit > 0 {
		cmd = append(cmd, "-rl", strconv.Itoa(args.RateLimit))
	}
	if args.Concurrency > 0 {
		cmd = append(cmd, "-c", strconv.Itoa(args.Concurrency))
	}
	if args.Verbose {
		cmd = append(cmd, "-v")
	}
	return cmd
}

// joinExcludeTemplates 清理并拼接排除模板列表
func joinExcludeTemplates(templates []string) string {
	var cleaned []string
	for _, t := range templates {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return strings.Join(cleaned, ",")
}

// Timeout 返回配置的执行超时
func (r *Runner) Timeout() time.Duration {
	return r.cfg.Timeout
}
