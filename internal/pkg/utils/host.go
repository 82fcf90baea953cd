/*
 * @author: sun977
 * @date: 2026.08.12
 * @description: 主机名规范化工具包
 * @func: 提供主机名提取、规范化、base域名计算等常用工具函数
 */

package utils

import (
	"net"
	"regexp"
	"strings"
)

var (
	slugInvalidRegex  = regexp.MustCompile(`[^a-z0-9\-_.]+`)
	slugCollapseRegex = regexp.MustCompile(`-{2,}`)
)

// CanonicalHost 从任意 URL/host 字符串中提取规范化主机名
// 规范化策略（固定策略，上游未完全约定，这里统一为）:
//   - 去掉协议前缀 (scheme://)
//   - 截断到第一个 '/'、'?'、'#' 之前（去掉路径和末尾斜杠）
//   - 去掉端口（包括默认端口和显式端口，IPv6 方括号格式也支持）
//   - 转为小写
//
// 这样 https://a.com/ 和 a.com:443 会合并为同一个逻辑主机 a.com
func CanonicalHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// 去掉协议前缀
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}

	// 截断路径、查询参数和锚点
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}

	// 去掉用户信息 (user:pass@host)
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}

	s = StripPort(s)
	if s == "" {
		return ""
	}
	return strings.ToLower(s)
}

// StripPort 去掉 host[:port] 中的端口部分
// 支持 [IPv6]:port 方括号格式；裸 IPv6 地址（多个冒号）原样返回
func StripPort(hostport string) string {
	if hostport == "" {
		return ""
	}

	// [IPv6] 或 [IPv6]:port
	if strings.HasPrefix(hostport, "[") {
		if i := strings.LastIndex(hostport, "]"); i > 0 {
			return hostport[1:i]
		}
		return hostport
	}

	// host:port (只有一个冒号才认为带端口，避免误伤裸 IPv6)
	if strings.Count(hostport, ":") == 1 {
		if i := strings.LastIndex(hostport, ":"); i >= 0 {
			return hostport[:i]
		}
	}

	return hostport
}

// Slugify 将任意字符串转为可安全用于文件名的 slug
// 非法字符替换为 '-'，连续 '-' 合并，空结果返回 "unknown"
func Slugify(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = slugInvalidRegex.ReplaceAllString(text, "-")
	text = slugCollapseRegex.ReplaceAllString(text, "-")
	text = strings.Trim(text, "-")
	if text == "" {
		return "unknown"
	}
	return text
}

// BaseDomain 计算主机名的可注册 base 域名
// 策略: 取最后两个标签；对 .id 等二级 ccTLD (co.id/go.id) 取最后三个标签
// 注意这是一个保守的启发式策略，不引入完整的公共后缀表
func BaseDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || net.ParseIP(host) != nil {
		return host
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 3 && parts[len(parts)-1] == "id" {
		return strings.Join(parts[len(parts)-3:], ".")
	}
	if len(parts) >= 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return host
}

// ResolveIP 解析主机名对应的 IPv4 地址
// 解析失败返回空字符串（产品名渲染时 {ip} 占位符留空）
func ResolveIP(host string) string {
	ips, err := net.LookupIP(host)
	if err != nil {
		return ""
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	if len(ips) > 0 {
		return ips[0].String()
	}
	return ""
}
