// 时间格式化工具
package utils

import "time"

const (
	// DateTimeCompactFormat 紧凑日期时间格式，用于输出文件命名 "20060102_150405"
	DateTimeCompactFormat = "20060102_150405"
	// DateFormat 日期格式 "2006-01-02"
	DateFormat = "2006-01-02"
)

// NowCompact 返回当前时间的紧凑格式字符串
// 返回格式: "20060102_150405"
func NowCompact() string {
	return time.Now().Format(DateTimeCompactFormat)
}

// UTCToday 返回当前 UTC 日期字符串
// 返回格式: "2006-01-02"，用于 scan_date 等 API 表单字段
func UTCToday() string {
	return time.Now().UTC().Format(DateFormat)
}
