/**
 * 扫描结果数据模型
 * @author: sun977
 * @date: 2026.08.13
 * @description: nuclei 扫描结果与 httpx 指纹结果的内部表示
 * @func: RawFinding、Record、TechProfile
 */
package model

import "encoding/json"

// RawFinding nuclei JSON 导出记录中本工具关心的字段
// 只解析分桶和展示需要的字段，完整记录保留在 Record.Raw 中
type RawFinding struct {
	TemplateID string  `json:"template-id"`
	Host       string  `json:"host"`
	IP         string  `json:"ip"`
	URL        string  `json:"url"`
	MatchedAt  string  `json:"matched-at"`
	Info       Info    `json:"info"`
	Request    Request `json:"request"`
}

// Request 请求上下文，仅用于主机字段全空时的兜底提取
// nuclei 导出中该字段可能是原始报文字符串，也可能是对象，两种形式都要容忍
type Request struct {
	URL string
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		r.URL = obj.URL
		return nil
	}
	// 字符串形式的原始报文直接忽略
	r.URL = ""
	return nil
}

// Info 模板元信息
type Info struct {
	Name     string   `json:"name"`
	Severity string   `json:"severity"`
	Tags     []string `json:"tags"`
}

// Record 单条扫描结果
// Raw 保存原始 JSON 字节，分桶写出时按原样透传，保证上传内容与扫描器输出逐字节一致
type Record struct {
	Finding RawFinding
	Raw     json.RawMessage
}

// HostKeyCandidates 返回该记录用于分桶的候选字段值（未规范化）
// 优先级: host > ip > url > matched-at > request.url
func (r *Record) HostKeyCandidates() []string {
	f := r.Finding
	return []string{f.Host, f.IP, f.URL, f.MatchedAt, f.Request.URL}
}

// TechProfile httpx 指纹探测结果
// key 为探测输入中出现的目标（原样），value 为识别出的技术栈名称列表
type TechProfile map[string][]string

// Technologies 返回指定目标的技术栈列表
// 按目标原文匹配，调用方负责规范化策略的一致性
func (p TechProfile) Technologies(target string) []string {
	if p == nil {
		return nil
	}
	return p[target]
}
