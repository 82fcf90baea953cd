/**
 * 技术栈到 nuclei 标签映射
 * @author: sun977
 * @date: 2026.08.13
 * @description: httpx 识别出的技术栈名称映射为 nuclei 模板标签，内置静态映射表
 * @func: TagsForTechnologies、AggregateTags、基础标签集合
 */
package techmap

import (
	"sort"
	"strings"

	"github.com/BananaMoustache/nuclei2dojo/internal/core/model"
)

// 基础标签策略
// 不论指纹结果如何，扫描请求都会带上排除标签和排除模板目录
var (
	// BaseIncludeTags 基础 include 标签集，指纹聚合时作为起点，无指纹时作为兜底
	BaseIncludeTags = []string{
		"exposure", "misconfig", "panel", "default-login",
		"tech", "fingerprint", "cve", "takeover", "web",
	}

	// BaseExcludeTags 始终排除的标签（高风险/高噪声类别）
	BaseExcludeTags = []string{"fuzz", "dos", "bruteforce", "network"}

	// BaseExcludeTemplates 始终排除的模板目录
	BaseExcludeTemplates = []string{"http/fuzzing/", "network/", "dns/"}
)

// FallbackTag 技术栈识别出了但映射表没有覆盖时的兜底标签
const FallbackTag = "tech"

// mapping 单条映射规则
// keywords 做子串匹配，exact 做全等匹配，同一条规则内任一命中即生效
type mapping struct {
	keywords []string
	exact    []string
	tags     []string
}

// techMappings 静态映射表
// 匹配对象为小写化后的技术栈名称（httpx -tech-detect 输出）
// 一个技术栈可以命中多条规则，结果取并集
var techMappings = []mapping{
	{keywords: []string{"wordpress"}, tags: []string{"wordpress", "wp", "php"}},
	{keywords: []string{"php"}, tags: []string{"php"}},
	{keywords: []string{"asp.net", "aspnet"}, tags: []string{"aspnet"}},
	{keywords: []string{"iis"}, tags: []string{"iis", "microsoft", "windows"}},
	{keywords: []string{"nginx"}, tags: []string{"nginx"}},
	{keywords: []string{"ubuntu", "debian", "centos", "red hat", "redhat"}, tags: []string{"linux"}},
	{keywords: []string{"windows server"}, tags: []string{"windows"}},
	{keywords: []string{"laravel"}, tags: []string{"laravel", "php"}},
	{keywords: []string{"django"}, tags: []string{"django", "python"}},
	{keywords: []string{"flask"}, tags: []string{"flask", "python"}},
	{keywords: []string{"drupal"}, tags: []string{"drupal", "php"}},
	{keywords: []string{"joomla"}, tags: []string{"joomla", "php"}},
	{keywords: []string{"jquery"}, tags: []string{"jquery", "javascript", "js"}},
	{keywords: []string{"react"}, tags: []string{"react", "javascript", "js"}},
	{keywords: []string{"vue.js", "vuejs"}, exact: []string{"vue"}, tags: []string{"vue", "javascript", "js"}},
	{keywords: []string{"angular"}, tags: []string{"angular", "javascript", "js"}},
	{keywords: []string{"node.js", "nodejs"}, exact: []string{"node"}, tags: []string{"nodejs", "javascript", "js"}},
	{keywords: []string{"nuxt.js", "nuxtjs"}, exact: []string{"nuxt"}, tags: []string{"nuxt", "javascript", "js"}},
}

// matches 判断单条规则是否命中给定技术栈名称（已小写化）
func (m *mapping) matches(name string) bool {
	for _, kw := range m.keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	for _, e := range m.exact {
		if strings.TrimSpace(name) == e {
			return true
		}
	}
	return false
}

// TagsForTechnologies 将技术栈名称列表映射为去重排序后的标签集合
// 技术栈非空但全部未命中映射表时返回兜底标签 {"tech"}
// 技术栈为空时返回 nil（调用方回退到基础标签策略）
func TagsForTechnologies(technologies []string) []string {
	if len(technologies) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	for _, tech := range technologies {
		name := strings.ToLower(tech)
		for i := range techMappings {
			if techMappings[i].matches(name) {
				for _, t := range techMappings[i].tags {
					seen[t] = struct{}{}
				}
			}
		}
	}

	if len(seen) == 0 {
		return []string{FallbackTag}
	}
	return sortedSet(seen)
}

// TagsForHost 返回指定目标在指纹结果中的标签集合
// 目标不在指纹结果中（探测失败/无响应）时返回 nil
func TagsForHost(profile model.TechProfile, target string) []string {
	return TagsForTechnologies(profile.Technologies(target))
}

// AggregateTags 汇总整个指纹结果的 include 标签集合
// 以基础 include 标签为起点，并入每个目标的技术栈标签
// 用于列表模式：一次扫描覆盖所有目标
func AggregateTags(profile model.TechProfile) []string {
	seen := make(map[string]struct{})
	for _, t := range BaseIncludeTags {
		seen[t] = struct{}{}
	}
	for _, techs := range profile {
		for _, t := range TagsForTechnologies(techs) {
			seen[t] = struct{}{}
		}
	}
	return sortedSet(seen)
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
