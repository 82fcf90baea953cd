/**
 * 扫描运行选项
 * @author: sun977
 * @date: 2026.08.16
 * @description: 命令行层组装、编排层消费的一次运行的全部选项
 * @func: ScanOptions、Validate
 */
package options

import (
	"fmt"

	"github.com/BananaMoustache/nuclei2dojo/internal/core/techmap"
)

// 指纹画像策略
const (
	// ProfileDefault 不做指纹探测，扫描不带 include 标签
	ProfileDefault = "default"
	// ProfileHttpx 先跑 httpx 指纹，按技术栈聚合 include 标签
	ProfileHttpx = "httpx"
)

// ScanOptions 一次扫描运行的选项
type ScanOptions struct {
	// 目标来源，二选一
	Target      string // 单目标模式
	TargetsFile string // 列表模式

	Profile  string // default / httpx
	Severity string // 透传给扫描器的严重级别过滤

	// 模板模式: 指定单个模板路径时按模板扫描，不走标签过滤
	TemplatePath string
	// 模板模式下要求主机技术栈命中的关键词（逗号分隔输入已拆分）
	TechFilter []string
	// 从模板 tags 自动推导 TechFilter（TechFilter 为空时生效）
	AutoFilter bool

	Headers     []string // 自定义请求头，透传给扫描器
	RateLimit   int
	Concurrency int
	Verbose     bool

	OutDir   string
	SaveJSON bool
}

// Validate 校验选项组合
func (o *ScanOptions) Validate() error {
	if o.Target == "" && o.TargetsFile == "" {
		return fmt.Errorf("a target or a targets file is required")
	}
	if o.Target != "" && o.TargetsFile != "" {
		return fmt.Errorf("target and targets file are mutually exclusive")
	}
	if o.Profile != ProfileDefault && o.Profile != ProfileHttpx {
		return fmt.Errorf("unknown profile %q (expected %s or %s)", o.Profile, ProfileDefault, ProfileHttpx)
	}
	if len(o.TechFilter) > 0 && o.TemplatePath == "" {
		return fmt.Errorf("tech filter requires a template path")
	}
	if o.AutoFilter && o.TemplatePath == "" {
		return fmt.Errorf("auto filter requires a template path")
	}
	return nil
}

// TemplateMode 是否为单模板扫描模式
func (o *ScanOptions) TemplateMode() bool {
	return o.TemplatePath != ""
}

// ResolveTechFilter 计算模板模式下生效的技术栈过滤关键词
// 显式关键词优先；开启自动推导时从模板 tags 提取，推导不出任何关键词报错
func (o *ScanOptions) ResolveTechFilter() ([]string, error) {
	if len(o.TechFilter) > 0 {
		return o.TechFilter, nil
	}
	if !o.AutoFilter {
		return nil, nil
	}
	keywords := techmap.TemplateTechKeywords(o.TemplatePath)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("auto filter derived no usable tech keywords from template %s, pass an explicit tech filter", o.TemplatePath)
	}
	return keywords, nil
}
