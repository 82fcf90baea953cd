/**
 * 运行配置管理
 * @author: sun977
 * @date: 2026.08.12
 * @description: nuclei2dojo 运行配置，启动时构造一次，之后只读传递
 * @func: 配置结构定义、默认值、校验
 */
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config 全局运行配置
// 启动时由 Load 构造一次，按引用传入各组件，运行期间不可变
type Config struct {
	// 日志配置
	Log *LogConfig `yaml:"log" mapstructure:"log"`

	// DefectDojo 记录库配置
	Dojo *DojoConfig `yaml:"dojo" mapstructure:"dojo"`

	// Nuclei 扫描器配置
	Nuclei *ToolConfig `yaml:"nuclei" mapstructure:"nuclei"`

	// Httpx 指纹探测配置
	Httpx *ToolConfig `yaml:"httpx" mapstructure:"httpx"`

	// 输出配置
	Output *OutputConfig `yaml:"output" mapstructure:"output"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`             // 日志级别 (debug/info/warn/error)
	Format     string `yaml:"format" mapstructure:"format"`           // 日志格式 (json/text)
	Output     string `yaml:"output" mapstructure:"output"`           // 日志输出 (stdout/stderr/file)
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`     // 日志文件路径
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // 最大文件大小（MB）
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // 最大备份数
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // 最大保留天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`       // 是否压缩
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // 是否显示调用者信息
}

// DojoConfig DefectDojo 记录库配置
type DojoConfig struct {
	URL   string `yaml:"url" mapstructure:"url"`     // API v2 base URL
	Token string `yaml:"token" mapstructure:"token"` // API Token

	ProductTypeName string `yaml:"product_type_name" mapstructure:"product_type_name"` // 产品类型名称（按名称匹配）
	ProductTypeID   int    `yaml:"product_type_id" mapstructure:"product_type_id"`     // 产品类型 ID（优先于名称）

	ProductNameFormat    string `yaml:"product_name_format" mapstructure:"product_name_format"`       // 产品名模板，支持 {host} {ip} 占位符
	EngagementNameFormat string `yaml:"engagement_name_format" mapstructure:"engagement_name_format"` // Engagement 名模板，支持 {host} 占位符

	// 产品精确匹配失败时，是否允许回退到 base 域名再查一次
	// 防止同一组织的多个子域名碎片化成多个产品
	AllowBaseDomainFallback bool `yaml:"allow_base_domain_fallback" mapstructure:"allow_base_domain_fallback"`

	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`               // 普通 API 调用超时
	UploadTimeout time.Duration `yaml:"upload_timeout" mapstructure:"upload_timeout"` // import/reimport 上传超时
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`       // 瞬时错误 (429/5xx) 重试次数
	RetryDelay    time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`       // 重试基础间隔（指数退避）
	PageSize      int           `yaml:"page_size" mapstructure:"page_size"`           // 分页大小
}

// ToolConfig 外部工具配置
type ToolConfig struct {
	BinPath string        `yaml:"bin_path" mapstructure:"bin_path"` // 可执行文件路径
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`   // 进程执行超时
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`             // 输出目录（分桶后的 per-host JSON）
	SaveJSON bool   `yaml:"save_json" mapstructure:"save_json"` // 是否保留 JSON 文件
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Log: &LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
		},
		Dojo: &DojoConfig{
			URL:                  "http://127.0.0.1:42003/api/v2",
			ProductTypeName:      "Research and Development",
			ProductNameFormat:    "ASM ({host})",
			EngagementNameFormat: "ASM - {host}",
			Timeout:              30 * time.Second,
			UploadTimeout:        180 * time.Second,
			MaxRetries:           3,
			RetryDelay:           1 * time.Second,
			PageSize:             200,
		},
		Nuclei: &ToolConfig{
			BinPath: "nuclei",
			Timeout: 1 * time.Hour,
		},
		Httpx: &ToolConfig{
			BinPath: "httpx",
			Timeout: 15 * time.Minute,
		},
		Output: &OutputConfig{
			Dir: "outputs",
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Dojo == nil || c.Nuclei == nil || c.Httpx == nil || c.Output == nil || c.Log == nil {
		return fmt.Errorf("config sections cannot be nil")
	}
	if strings.TrimSpace(c.Dojo.URL) == "" {
		return fmt.Errorf("dojo url is required (set DD_URL or --dd-url)")
	}
	if c.Dojo.PageSize <= 0 {
		return fmt.Errorf("dojo page_size must be greater than 0")
	}
	if c.Dojo.MaxRetries < 0 {
		return fmt.Errorf("dojo max_retries cannot be negative")
	}
	if !strings.Contains(c.Dojo.ProductNameFormat, "{host}") {
		return fmt.Errorf("product_name_format must contain the {host} placeholder")
	}
	return nil
}
