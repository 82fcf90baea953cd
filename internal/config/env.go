/**
 * 环境变量加载
 * @author: sun977
 * @date: 2026.08.12
 * @description: .env 文件加载与 DD_* 环境变量读取
 * @func: LoadDotEnv、环境变量辅助函数
 */
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv 加载 .env 文件中的环境变量
// 文件不存在时静默跳过，已存在的环境变量不会被覆盖
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// GetEnv 获取环境变量，不存在时返回默认值
func GetEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool 获取布尔环境变量
// 接受 1/true/yes/on（大小写不敏感），其余值返回默认值
func GetEnvBool(key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
