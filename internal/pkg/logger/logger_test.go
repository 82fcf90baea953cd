package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BananaMoustache/nuclei2dojo/internal/config"
)

// TestInitLoggerFileOutput 验证 file 输出经由轮转器落盘，目录自动创建
func TestInitLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	_, err := InitLogger(&config.LogConfig{
		Level:      "info",
		Format:     "json",
		Output:     "file",
		FilePath:   path,
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	})
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}

	Infof("rotation sink check %d", 42)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "rotation sink check 42") {
		t.Errorf("log file content = %q", string(data))
	}
}

func TestInitLoggerRejectsBadConfig(t *testing.T) {
	if _, err := InitLogger(nil); err == nil {
		t.Error("nil config should fail")
	}
	if _, err := InitLogger(&config.LogConfig{Level: "info", Format: "xml", Output: "stdout"}); err == nil {
		t.Error("unknown format should fail")
	}
	if _, err := InitLogger(&config.LogConfig{Level: "info", Format: "text", Output: "file"}); err == nil {
		t.Error("file output without a path should fail")
	}
}
