/*
 * @author: sun977
 * @date: 2026.08.17
 * @description: scan 父命令与公共参数定义
 */

package scan

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/BananaMoustache/nuclei2dojo/internal/config"
	"github.com/BananaMoustache/nuclei2dojo/internal/core/options"
	"github.com/BananaMoustache/nuclei2dojo/internal/core/pipeline"
	"github.com/BananaMoustache/nuclei2dojo/internal/core/techmap"
	execcore "github.com/BananaMoustache/nuclei2dojo/internal/executor/core"
	"github.com/BananaMoustache/nuclei2dojo/internal/executor/httpx"
	"github.com/BananaMoustache/nuclei2dojo/internal/executor/nuclei"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/dojo"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/logger"
)

// scanFlags scan 子命令共享的命令行参数
type scanFlags struct {
	ddURL   string
	ddToken string

	profile     string
	severity    string
	headers     []string
	rateLimit   int
	concurrency int
	verbose     bool

	template   string
	techFilter string
	autoFilter bool

	outDir   string
	saveJSON bool
}

var (
	globalFlags scanFlags
	// 由 root 注入，RunE 阶段才读取
	configFileFn func() string
)

// NewScanCmd 创建 scan 父命令
func NewScanCmd(cfgFile func() string) *cobra.Command {
	configFileFn = cfgFile

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "执行扫描并上传结果",
		Long: `执行 nuclei 扫描并把结果导入 DefectDojo。
请使用具体的子命令 list 或 single。`,
	}

	// 定义持久化 Flags (所有子命令都可用)
	pFlags := cmd.PersistentFlags()
	pFlags.StringVar(&globalFlags.ddURL, "dd-url", "", "DefectDojo API v2 地址 (默认取 DD_URL)")
	pFlags.StringVar(&globalFlags.ddToken, "dd-token", "", "DefectDojo API Token (默认取 DD_TOKEN)")
	pFlags.StringVar(&globalFlags.profile, "profile", options.ProfileDefault, "扫描画像 (default: 不带标签全量扫 / httpx: 按指纹聚合标签)")
	pFlags.StringVarP(&globalFlags.severity, "severity", "s", "", "严重级别过滤，透传给 nuclei (如: high,critical)")
	pFlags.StringArrayVarP(&globalFlags.headers, "header", "H", nil, "自定义请求头，可重复")
	pFlags.IntVar(&globalFlags.rateLimit, "rate-limit", 0, "nuclei 每秒请求数上限 (alias: --rl)")
	pFlags.IntVar(&globalFlags.concurrency, "concurrency", 0, "nuclei 并发模板数 (alias: --c)")
	pFlags.BoolVarP(&globalFlags.verbose, "verbose", "v", false, "透传 nuclei 详细输出")
	pFlags.StringVar(&globalFlags.template, "cve-template", "", "单模板扫描路径，设置后跳过标签过滤")
	pFlags.StringVar(&globalFlags.techFilter, "cve-tech-filter", "", "模板模式下要求命中的技术栈关键词，逗号分隔 (如: react 或 wordpress,php)")
	pFlags.BoolVar(&globalFlags.autoFilter, "cve-auto-filter", false, "从模板 tags 自动推导技术栈过滤关键词")
	pFlags.StringVar(&globalFlags.outDir, "out-dir", "", "per-host 结果文件输出目录")
	pFlags.BoolVar(&globalFlags.saveJSON, "save-json", false, "保留扫描结果 JSON 文件")

	// 注册别名 (Hidden flags) 方便用户使用简短命令
	pFlags.IntVar(&globalFlags.rateLimit, "rl", 0, "rate-limit 简写")
	pFlags.Lookup("rl").Hidden = true
	pFlags.IntVar(&globalFlags.concurrency, "c", 0, "concurrency 简写")
	pFlags.Lookup("c").Hidden = true

	// 注册子命令
	cmd.AddCommand(NewListScanCmd())
	cmd.AddCommand(NewSingleScanCmd())

	return cmd
}

// buildOptions 把命令行参数组装为运行选项
func buildOptions(cfg *config.Config) *options.ScanOptions {
	opts := &options.ScanOptions{
		Profile:      globalFlags.profile,
		Severity:     globalFlags.severity,
		Headers:      globalFlags.headers,
		RateLimit:    globalFlags.rateLimit,
		Concurrency:  globalFlags.concurrency,
		Verbose:      globalFlags.verbose,
		TemplatePath: globalFlags.template,
		TechFilter:   techmap.SplitKeywordArg(globalFlags.techFilter),
		AutoFilter:   globalFlags.autoFilter,
		OutDir:       cfg.Output.Dir,
		SaveJSON:     cfg.Output.SaveJSON || globalFlags.saveJSON,
	}
	if globalFlags.outDir != "" {
		opts.OutDir = globalFlags.outDir
	}
	return opts
}

// loadRunConfig 加载配置并应用命令行覆盖
// 配置就绪后按 log 配置重建日志器（支持文件输出和轮转），--log-level 优先
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigFromFile(configFileFn())
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Log.Level = f.Value.String()
	}
	if _, err := logger.InitLogger(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if globalFlags.ddURL != "" {
		cfg.Dojo.URL = globalFlags.ddURL
	}
	if globalFlags.ddToken != "" {
		cfg.Dojo.Token = globalFlags.ddToken
	}
	if cfg.Dojo.Token == "" {
		return nil, fmt.Errorf("DD token is required, use --dd-token or set DD_TOKEN")
	}
	return cfg, nil
}

// runScan 组装依赖并执行一次运行
// 进程收到中断信号时取消 context，外部子进程随之终止
func runScan(opts *options.ScanOptions, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commander := execcore.NewExecCommander()

	runner := nuclei.NewRunner(cfg.Nuclei, commander)
	if err := runner.CheckBinary(); err != nil {
		return err
	}

	prober := httpx.NewProber(cfg.Httpx, commander)
	needsProbe := opts.Profile == options.ProfileHttpx || len(opts.TechFilter) > 0 || opts.AutoFilter
	if needsProbe {
		if err := prober.CheckBinary(); err != nil {
			return err
		}
	}

	client := dojo.NewClient(cfg.Dojo)
	orchestrator := pipeline.NewOrchestrator(cfg, runner, prober, client)

	report, err := orchestrator.Run(ctx, opts)
	if err != nil {
		return err
	}

	printReport(report)
	if report.HasFailures() {
		return fmt.Errorf("%d host(s) failed to upload", len(report.Failed))
	}
	return nil
}

// printReport 输出运行汇总
func printReport(report *pipeline.RunReport) {
	pterm.DefaultSection.Println("Run summary")
	for _, hr := range report.Uploaded {
		pterm.Success.Printfln("%s: %s -> %q (%d findings)", hr.Mode, hr.Host, hr.Product, hr.Findings)
	}
	for _, host := range report.Clean {
		pterm.Info.Printfln("clean: %s (no findings)", host)
	}
	for _, host := range report.Skipped {
		pterm.Info.Printfln("skipped: %s (tech filter not matched)", host)
	}
	for _, hr := range report.Failed {
		pterm.Error.Printfln("failed: %s: %v", hr.Host, hr.Err)
	}
}
