package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dojo.URL = "  "
	if err := cfg.Validate(); err == nil {
		t.Error("empty dojo url should fail")
	}

	cfg = DefaultConfig()
	cfg.Dojo.PageSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero page size should fail")
	}

	cfg = DefaultConfig()
	cfg.Dojo.ProductNameFormat = "ASM"
	if err := cfg.Validate(); err == nil {
		t.Error("format without {host} should fail")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
dojo:
  url: https://dojo.internal/api/v2
  token: abc
  page_size: 50
  timeout: 10s
nuclei:
  bin_path: /opt/nuclei
output:
  dir: /tmp/n2d
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}

	if cfg.Dojo.URL != "https://dojo.internal/api/v2" {
		t.Errorf("url = %s", cfg.Dojo.URL)
	}
	if cfg.Dojo.PageSize != 50 {
		t.Errorf("page_size = %d", cfg.Dojo.PageSize)
	}
	if cfg.Dojo.Timeout != 10*time.Second {
		t.Errorf("timeout = %s", cfg.Dojo.Timeout)
	}
	// 未覆盖的字段保持默认值
	if cfg.Dojo.MaxRetries != 3 {
		t.Errorf("max_retries = %d, want default 3", cfg.Dojo.MaxRetries)
	}
	if cfg.Httpx.BinPath != "httpx" {
		t.Errorf("httpx bin = %s, want default", cfg.Httpx.BinPath)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DD_URL", "https://env.dojo/api/v2")
	t.Setenv("DD_PROD_TYPE_ID", "9")
	t.Setenv("N2D_SAVE_JSON", "yes")

	loader := NewConfigLoader("")
	cfg, err := loader.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Dojo.URL != "https://env.dojo/api/v2" {
		t.Errorf("DD_URL not applied: %s", cfg.Dojo.URL)
	}
	if cfg.Dojo.ProductTypeID != 9 {
		t.Errorf("DD_PROD_TYPE_ID not applied: %d", cfg.Dojo.ProductTypeID)
	}
	if !cfg.Output.SaveJSON {
		t.Error("N2D_SAVE_JSON not applied")
	}
}

// TestToolTimeoutEnvCompat 工具超时环境变量兼容裸秒数和 Go duration 两种写法
func TestToolTimeoutEnvCompat(t *testing.T) {
	t.Setenv("HTTPX_TIMEOUT", "900")
	t.Setenv("NUCLEI_TIMEOUT", "30m")

	loader := NewConfigLoader("")
	cfg, err := loader.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Httpx.Timeout != 900*time.Second {
		t.Errorf("HTTPX_TIMEOUT=900 -> %s, want 15m0s", cfg.Httpx.Timeout)
	}
	if cfg.Nuclei.Timeout != 30*time.Minute {
		t.Errorf("NUCLEI_TIMEOUT=30m -> %s, want 30m0s", cfg.Nuclei.Timeout)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("N2D_TEST_BOOL", "YES")
	if !GetEnvBool("N2D_TEST_BOOL", false) {
		t.Error("YES should parse as true")
	}
	t.Setenv("N2D_TEST_BOOL", "0")
	if GetEnvBool("N2D_TEST_BOOL", true) {
		t.Error("0 should parse as false")
	}
	t.Setenv("N2D_TEST_BOOL", "maybe")
	if !GetEnvBool("N2D_TEST_BOOL", true) {
		t.Error("unparseable value should keep default")
	}
}
