/**
 * 扫描上传编排器
 * @author: sun977
 * @date: 2026.08.16
 * @description: 指纹 -> 标签 -> 扫描 -> 分桶 -> 逐主机上传的端到端编排，单线程顺序执行
 * @func: Orchestrator、Run、RunReport
 */
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BananaMoustache/nuclei2dojo/internal/config"
	"github.com/BananaMoustache/nuclei2dojo/internal/core/model"
	"github.com/BananaMoustache/nuclei2dojo/internal/core/options"
	"github.com/BananaMoustache/nuclei2dojo/internal/core/partition"
	"github.com/BananaMoustache/nuclei2dojo/internal/core/techmap"
	"github.com/BananaMoustache/nuclei2dojo/internal/executor/nuclei"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/dojo"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/logger"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/utils"
)

// Scanner 扫描器接口，生产实现为 nuclei 执行器
type Scanner interface {
	Scan(ctx context.Context, args *nuclei.ScanArgs) (string, error)
}

// TechProber 指纹探测接口，生产实现为 httpx 执行器
type TechProber interface {
	Probe(ctx context.Context, targetsFile string) (model.TechProfile, error)
}

// HostReport 单主机的上传结果
type HostReport struct {
	Host       string
	Product    string
	Engagement string
	Mode       string // "import" / "reimport"
	Findings   int
	Err        error
}

// RunReport 一次运行的汇总
type RunReport struct {
	Uploaded []HostReport // 成功上传的主机
	Failed   []HostReport // 上传失败的主机（认证失败除外，认证失败中止运行）
	Clean    []string     // 在目标列表中但没有任何发现的主机
	Skipped  []string     // 模板模式下技术栈过滤未命中而跳过的主机
	Findings int          // 分桶后的发现总数
}

// HasFailures 是否存在失败主机，决定进程退出码
func (r *RunReport) HasFailures() bool {
	return len(r.Failed) > 0
}

// Orchestrator 编排器
// 一次运行对应一个实例，内部缓存不跨运行复用
type Orchestrator struct {
	cfg      *config.Config
	scanner  Scanner
	prober   TechProber
	client   dojo.Client
	resolver *dojo.Resolver
}

// NewOrchestrator 创建编排器
func NewOrchestrator(cfg *config.Config, scanner Scanner, prober TechProber, client dojo.Client) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		scanner:  scanner,
		prober:   prober,
		client:   client,
		resolver: dojo.NewResolver(cfg.Dojo, client),
	}
}

// Run 执行一次完整运行
// 认证失败立即返回错误中止；其余主机级错误记录在报告中继续执行
func (o *Orchestrator) Run(ctx context.Context, opts *options.ScanOptions) (*RunReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	targets, err := o.loadTargets(opts)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no usable targets")
	}

	report := &RunReport{}

	scanArgs, cleanupTargets, err := o.prepareScan(ctx, opts, targets, report)
	if err != nil {
		return nil, err
	}
	if cleanupTargets != nil {
		defer cleanupTargets()
	}
	if scanArgs == nil {
		// 过滤后没有可扫描主机
		return report, nil
	}

	exportPath, err := o.scanner.Scan(ctx, scanArgs)
	if err != nil {
		return nil, fmt.Errorf("scan stage: %w", err)
	}
	defer func() {
		if !opts.SaveJSON {
			os.Remove(exportPath)
		}
	}()

	records, err := partition.DecodeFile(exportPath)
	if err != nil {
		return nil, fmt.Errorf("partition stage: %w", err)
	}
	set := partition.Split(records)
	report.Findings = set.Total()
	logger.Infof("Findings: %d | Unique hosts: %d", set.Total(), set.Len())

	// 目标列表里有但没有任何发现的主机记为 clean，与"未扫描"区分开
	report.Clean = cleanHosts(targets, set, report.Skipped)

	if opts.SaveJSON {
		if err := o.retainCombined(exportPath, opts.OutDir); err != nil {
			logger.Warnf("Failed to retain combined JSON: %v", err)
		}
	}

	if err := o.uploadAll(ctx, opts, set, report); err != nil {
		return report, err
	}

	logger.Infof("Done. %d/%d host(s) uploaded, %d clean, %d skipped, %d failed.",
		len(report.Uploaded), set.Len(), len(report.Clean), len(report.Skipped), len(report.Failed))
	return report, nil
}

// loadTargets 组装目标列表
// 单目标模式归约为一条目标的列表模式
func (o *Orchestrator) loadTargets(opts *options.ScanOptions) ([]string, error) {
	if opts.Target != "" {
		return []string{opts.Target}, nil
	}
	targets, err := utils.ReadLines(opts.TargetsFile)
	if err != nil {
		return nil, err
	}
	return targets, nil
}

// prepareScan 按模式和画像策略构造扫描参数
// 返回 nil 参数表示本次运行无可扫描主机（非错误）
// 第二个返回值用于清理临时目标文件
func (o *Orchestrator) prepareScan(ctx context.Context, opts *options.ScanOptions, targets []string, report *RunReport) (*nuclei.ScanArgs, func(), error) {
	args := &nuclei.ScanArgs{
		Severity:    opts.Severity,
		Headers:     opts.Headers,
		RateLimit:   opts.RateLimit,
		Concurrency: opts.Concurrency,
		Verbose:     opts.Verbose,
	}

	if opts.TemplateMode() {
		return o.prepareTemplateScan(ctx, opts, targets, args, report)
	}

	if opts.Profile == options.ProfileHttpx {
		// 指纹失败不致命，退回基础标签集继续扫描
		profile, err := o.probeTargets(ctx, targets)
		if err != nil {
			logger.Warnf("Fingerprint probe failed, falling back to base tags: %v", err)
			args.IncludeTags = append([]string(nil), techmap.BaseIncludeTags...)
		} else {
			logProfile(profile)
			args.IncludeTags = techmap.AggregateTags(profile)
		}
		args.ExcludeTags = append([]string(nil), techmap.BaseExcludeTags...)
		args.ExcludeTemplates = append([]string(nil), techmap.BaseExcludeTemplates...)
	}

	cleanup, err := o.attachTargets(opts, targets, args)
	if err != nil {
		return nil, nil, err
	}
	return args, cleanup, nil
}

// prepareTemplateScan 单模板模式
// 有技术栈过滤时只扫描指纹命中的主机，没有命中任何主机时整个扫描跳过
func (o *Orchestrator) prepareTemplateScan(ctx context.Context, opts *options.ScanOptions, targets []string, args *nuclei.ScanArgs, report *RunReport) (*nuclei.ScanArgs, func(), error) {
	args.Templates = []string{opts.TemplatePath}

	keywords, err := opts.ResolveTechFilter()
	if err != nil {
		return nil, nil, err
	}
	if len(keywords) == 0 {
		logger.Infof("Template mode: %s (no tech filter) scanning all targets", opts.TemplatePath)
		cleanup, err := o.attachTargets(opts, targets, args)
		return args, cleanup, err
	}
	logger.Infof("Template mode: %s tech filter=%v", opts.TemplatePath, keywords)

	profile, err := o.probeTargets(ctx, targets)
	if err != nil {
		return nil, nil, fmt.Errorf("tech filter requires fingerprinting: %w", err)
	}
	logProfile(profile)

	var matched []string
	for _, target := range targets {
		host := utils.CanonicalHost(target)
		if techmap.HasKeywordOverlap(keywords, profile.Technologies(host)) {
			matched = append(matched, target)
		} else {
			report.Skipped = append(report.Skipped, host)
		}
	}
	sort.Strings(report.Skipped)

	if len(matched) == 0 {
		logger.Warnf("No hosts matched tech filter %v for template %s. Nothing scanned.", keywords, opts.TemplatePath)
		return nil, nil, nil
	}

	cleanup, err := o.attachTargets(opts, matched, args)
	if err != nil {
		return nil, nil, err
	}
	return args, cleanup, nil
}

// attachTargets 把目标列表挂到扫描参数上
// 多于一条目标时写临时列表文件，由返回的清理函数删除
func (o *Orchestrator) attachTargets(opts *options.ScanOptions, targets []string, args *nuclei.ScanArgs) (func(), error) {
	if len(targets) == 1 {
		args.Target = targets[0]
		return nil, nil
	}
	tmpFile, err := utils.WriteTempLines("nuclei2dojo_targets_*.txt", targets)
	if err != nil {
		return nil, err
	}
	args.TargetsFile = tmpFile
	return func() { os.Remove(tmpFile) }, nil
}

// probeTargets 对目标列表执行指纹探测
func (o *Orchestrator) probeTargets(ctx context.Context, targets []string) (model.TechProfile, error) {
	tmpFile, err := utils.WriteTempLines("nuclei2dojo_probe_*.txt", targets)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpFile)

	profile, err := o.prober.Probe(ctx, tmpFile)
	if err != nil {
		return nil, err
	}
	if len(profile) == 0 {
		return nil, fmt.Errorf("probe returned no hosts")
	}
	return profile, nil
}

// uploadAll 逐主机上传，顺序由分桶结果的排序主机列表决定
// 认证失败中止整个循环，其余错误隔离到单主机
func (o *Orchestrator) uploadAll(ctx context.Context, opts *options.ScanOptions, set *partition.HostResultSet, report *RunReport) error {
	ts := utils.NowCompact()

	for _, host := range set.Hosts() {
		hr, err := o.uploadHost(ctx, opts, host, ts, set.Records(host))
		if err != nil {
			if errors.Is(err, dojo.ErrAuth) {
				return fmt.Errorf("record store rejected credentials, aborting run: %w", err)
			}
			logger.WithField("host", host).Errorf("upload failed: %v", err)
			hr.Err = err
			report.Failed = append(report.Failed, *hr)
			continue
		}
		logger.Infof("%s: host=%s product=%q findings=%d", hr.Mode, host, hr.Product, hr.Findings)
		report.Uploaded = append(report.Uploaded, *hr)
	}
	return nil
}

// uploadHost 上传单主机结果
// 导入和增量导入的选择以 Engagement 已有发现数为准：零走 import，非零走 reimport
func (o *Orchestrator) uploadHost(ctx context.Context, opts *options.ScanOptions, host, ts string, records []*model.Record) (*HostReport, error) {
	hr := &HostReport{Host: host}

	path, err := partition.WriteHostFile(opts.OutDir, host, ts, records)
	if err != nil {
		return hr, err
	}
	defer func() {
		if !opts.SaveJSON {
			os.Remove(path)
		}
	}()

	res, err := o.resolver.Resolve(ctx, host)
	if err != nil {
		return hr, err
	}
	hr.Product = res.Product.Name
	hr.Engagement = res.Engagement.Name

	existing, err := o.client.CountFindings(ctx, res.Engagement.ID)
	if err != nil {
		return hr, err
	}

	form := &dojo.ImportForm{
		EngagementID:   res.Engagement.ID,
		ProductName:    res.Product.Name,
		EngagementName: res.Engagement.Name,
		FilePath:       path,
		ScanDate:       utils.UTCToday(),
	}
	if pt := o.resolver.ProductTypeInfo(); pt != nil {
		form.ProductTypeID = pt.ID
		form.ProductTypeName = pt.Name
	}

	var result *dojo.ImportResult
	if existing > 0 {
		hr.Mode = "reimport"
		result, err = o.client.ReimportScan(ctx, form)
	} else {
		hr.Mode = "import"
		result, err = o.client.ImportScan(ctx, form)
	}
	if err != nil {
		return hr, err
	}

	if n, ok := result.Count(); ok {
		hr.Findings = n
	} else {
		hr.Findings = len(records)
	}
	return hr, nil
}

// retainCombined 保留合并导出文件到输出目录
func (o *Orchestrator) retainCombined(exportPath, outDir string) error {
	if err := utils.EnsureDir(outDir); err != nil {
		return err
	}
	dst := filepath.Join(outDir, fmt.Sprintf("nuclei_combined_%s.json", utils.NowCompact()))
	data, err := os.ReadFile(exportPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	logger.Infof("Combined JSON copied: %s", dst)
	return nil
}

// cleanHosts 计算目标列表中没有任何发现的主机
// 模板模式下被过滤跳过的主机不算 clean
func cleanHosts(targets []string, set *partition.HostResultSet, skipped []string) []string {
	skippedSet := make(map[string]struct{}, len(skipped))
	for _, h := range skipped {
		skippedSet[h] = struct{}{}
	}

	seen := make(map[string]struct{})
	var clean []string
	for _, target := range targets {
		host := utils.CanonicalHost(target)
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		if _, ok := skippedSet[host]; ok {
			continue
		}
		if len(set.Records(host)) == 0 {
			clean = append(clean, host)
		}
	}
	sort.Strings(clean)
	return clean
}

// logProfile 打印指纹探测汇总
func logProfile(profile model.TechProfile) {
	hosts := make([]string, 0, len(profile))
	for h := range profile {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	for _, h := range hosts {
		if techs := profile[h]; len(techs) > 0 {
			logger.Infof("%s: %v -> tags %v", h, techs, techmap.TagsForHost(profile, h))
		} else {
			logger.Warnf("%s: (no tech detected)", h)
		}
	}
}
