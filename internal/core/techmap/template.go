/**
 * 模板标签反推技术栈过滤
 * @author: sun977
 * @date: 2026.08.13
 * @description: 从 nuclei 模板的 info.tags 自动推导技术栈过滤关键词
 * @func: TemplateTechKeywords、HasKeywordOverlap
 */
package techmap

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// genericTags 通用标签集合
// 这些标签描述漏洞类别而不是具体技术栈，不能用作主机过滤条件
var genericTags = map[string]struct{}{
	"cve": {}, "http": {}, "https": {}, "tcp": {}, "udp": {},
	"rce": {}, "xss": {}, "lfi": {}, "sqli": {},
	"misconfig": {}, "exposure": {}, "web": {},
	"tech": {}, "fingerprint": {}, "takeover": {},
}

var keywordSanitizeRegex = regexp.MustCompile(`[^a-z0-9._-]+`)

// stringOrList 兼容 nuclei 模板 tags 字段的两种写法
// 标量形式 "cve,rce,react" 或列表形式 [cve, rce, react]
type stringOrList []string

func (s *stringOrList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*s = splitTagList(raw)
		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*s = raw
		return nil
	}
	return fmt.Errorf("unexpected yaml node kind %d for tags", node.Kind)
}

// templateInfo nuclei 模板中本工具关心的元信息
type templateInfo struct {
	Info struct {
		Tags stringOrList `yaml:"tags"`
	} `yaml:"info"`
}

// TemplateTechKeywords 从模板文件推导技术栈过滤关键词
// 解析 info.tags 并剔除通用类别标签，保持模板内出现顺序
// 文件不可读或解析失败时返回空列表（调用方决定是否中止）
func TemplateTechKeywords(templatePath string) []string {
	if templatePath == "" {
		return nil
	}
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return nil
	}

	var tpl templateInfo
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil
	}

	var keywords []string
	seen := make(map[string]struct{})
	for _, tag := range tpl.Info.Tags {
		kw := keywordSanitizeRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(tag)), "")
		if kw == "" {
			continue
		}
		if _, generic := genericTags[kw]; generic {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
	}
	return keywords
}

// HasKeywordOverlap 判断技术栈列表是否命中任一过滤关键词
// 关键词对技术栈名称做小写子串匹配
func HasKeywordOverlap(keywords, technologies []string) bool {
	for _, tech := range technologies {
		low := strings.ToLower(tech)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(low, kw) {
				return true
			}
		}
	}
	return false
}

// SplitKeywordArg 解析命令行传入的逗号分隔过滤关键词
func SplitKeywordArg(s string) []string {
	return splitTagList(strings.ToLower(s))
}

func splitTagList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
