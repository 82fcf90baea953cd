/**
 * 配置加载器
 * @author: sun977
 * @date: 2026.08.12
 * @description: viper 配置加载，优先级 环境变量 > 配置文件 > 默认值
 * @func: ConfigLoader、LoadConfig
 */
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigLoader 配置加载器
type ConfigLoader struct {
	configFile string
	viper      *viper.Viper
}

// NewConfigLoader 创建配置加载器
// configFile 为空时只搜索默认路径，找不到配置文件也不报错（纯环境变量模式）
func NewConfigLoader(configFile string) *ConfigLoader {
	return &ConfigLoader{
		configFile: configFile,
		viper:      viper.New(),
	}
}

// LoadConfig 加载配置
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	// 先加载 .env（已存在的环境变量优先）
	LoadDotEnv()

	cl.viper.SetConfigType("yaml")
	cl.viper.AutomaticEnv()
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 绑定环境变量
	cl.bindEnvVars()

	// 设置默认值
	cl.setDefaults()

	// 加载配置文件
	if err := cl.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// 解析配置
	config := DefaultConfig()
	if err := cl.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 特殊环境变量兼容处理
	applyEnvCompat(config)

	// 验证配置
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnvCompat 处理与上游平台约定格式不同的环境变量
// 工具超时支持裸数字（按秒）和 Go duration 两种写法
func applyEnvCompat(config *Config) {
	if d, ok := envDuration("HTTPX_TIMEOUT"); ok {
		config.Httpx.Timeout = d
	}
	if d, ok := envDuration("NUCLEI_TIMEOUT"); ok {
		config.Nuclei.Timeout = d
	}
	config.Output.SaveJSON = GetEnvBool("N2D_SAVE_JSON", config.Output.SaveJSON)
}

func envDuration(key string) (time.Duration, bool) {
	v := strings.TrimSpace(GetEnv(key, ""))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, true
	}
	return 0, false
}

// loadConfigFile 加载配置文件
// 显式指定的文件必须存在，默认搜索路径下找不到则静默跳过
func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configFile != "" {
		cl.viper.SetConfigFile(cl.configFile)
		if err := cl.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("config file %s: %w", cl.configFile, err)
		}
		return nil
	}

	cl.viper.SetConfigName("config")
	cl.viper.AddConfigPath("./configs")
	cl.viper.AddConfigPath(".")

	if err := cl.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// bindEnvVars 绑定环境变量
// DD_* 系列与上游资产管理平台约定保持一致
func (cl *ConfigLoader) bindEnvVars() {
	// DefectDojo 配置
	cl.viper.BindEnv("dojo.url", "DD_URL")
	cl.viper.BindEnv("dojo.token", "DD_TOKEN")
	cl.viper.BindEnv("dojo.product_type_name", "DD_PROD_TYPE_NAME")
	cl.viper.BindEnv("dojo.product_type_id", "DD_PROD_TYPE_ID")
	cl.viper.BindEnv("dojo.product_name_format", "DD_PRODUCT_FMT")
	cl.viper.BindEnv("dojo.allow_base_domain_fallback", "DD_ALLOW_BASE_FALLBACK")

	// 外部工具配置
	// HTTPX_TIMEOUT/NUCLEI_TIMEOUT 单独处理，历史约定裸数字按秒解释
	cl.viper.BindEnv("nuclei.bin_path", "NUCLEI_BIN")
	cl.viper.BindEnv("httpx.bin_path", "HTTPX_BIN")

	// 日志配置
	cl.viper.BindEnv("log.level", "N2D_LOG_LEVEL")
	cl.viper.BindEnv("log.file_path", "N2D_LOG_FILE_PATH")

	// 输出配置
	cl.viper.BindEnv("output.dir", "N2D_OUTPUT_DIR")
}

// setDefaults 设置默认值
// 与 DefaultConfig 保持一致，viper 层也设置一份用于覆盖顺序计算
func (cl *ConfigLoader) setDefaults() {
	def := DefaultConfig()

	// 日志默认值
	cl.viper.SetDefault("log.level", def.Log.Level)
	cl.viper.SetDefault("log.format", def.Log.Format)
	cl.viper.SetDefault("log.output", def.Log.Output)
	cl.viper.SetDefault("log.max_size", def.Log.MaxSize)
	cl.viper.SetDefault("log.max_backups", def.Log.MaxBackups)
	cl.viper.SetDefault("log.max_age", def.Log.MaxAge)

	// DefectDojo 默认值
	cl.viper.SetDefault("dojo.url", def.Dojo.URL)
	cl.viper.SetDefault("dojo.product_type_name", def.Dojo.ProductTypeName)
	cl.viper.SetDefault("dojo.product_name_format", def.Dojo.ProductNameFormat)
	cl.viper.SetDefault("dojo.engagement_name_format", def.Dojo.EngagementNameFormat)
	cl.viper.SetDefault("dojo.timeout", def.Dojo.Timeout.String())
	cl.viper.SetDefault("dojo.upload_timeout", def.Dojo.UploadTimeout.String())
	cl.viper.SetDefault("dojo.max_retries", def.Dojo.MaxRetries)
	cl.viper.SetDefault("dojo.retry_delay", def.Dojo.RetryDelay.String())
	cl.viper.SetDefault("dojo.page_size", def.Dojo.PageSize)

	// 外部工具默认值
	cl.viper.SetDefault("nuclei.bin_path", def.Nuclei.BinPath)
	cl.viper.SetDefault("nuclei.timeout", def.Nuclei.Timeout.String())
	cl.viper.SetDefault("httpx.bin_path", def.Httpx.BinPath)
	cl.viper.SetDefault("httpx.timeout", def.Httpx.Timeout.String())

	// 输出默认值
	cl.viper.SetDefault("output.dir", def.Output.Dir)
	cl.viper.SetDefault("output.save_json", def.Output.SaveJSON)
}

// LoadConfigFromFile 从指定文件加载配置
func LoadConfigFromFile(configFile string) (*Config, error) {
	if configFile != "" {
		configFile = filepath.Clean(configFile)
	}
	loader := NewConfigLoader(configFile)
	return loader.LoadConfig()
}
