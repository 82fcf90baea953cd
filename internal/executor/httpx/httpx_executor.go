/**
 * httpx 指纹探测执行器
 * @author: sun977
 * @date: 2026.08.14
 * @description: 封装 httpx -tech-detect 调用，解析 JSONL 输出构建主机技术栈画像
 * @func: Prober、Probe、parseProfile
 */
package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/BananaMoustache/nuclei2dojo/internal/config"
	"github.com/BananaMoustache/nuclei2dojo/internal/core/model"
	"github.com/BananaMoustache/nuclei2dojo/internal/executor/core"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/logger"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/utils"
)

// Prober httpx 指纹探测器
type Prober struct {
	cfg       *config.ToolConfig
	commander core.Commander
}

// NewProber 创建指纹探测器
func NewProber(cfg *config.ToolConfig, commander core.Commander) *Prober {
	return &Prober{cfg: cfg, commander: commander}
}

// CheckBinary 检查 httpx 可执行文件是否可用
func (p *Prober) CheckBinary() error {
	if _, err := p.commander.LookPath(p.cfg.BinPath); err != nil {
		return fmt.Errorf("httpx binary not available, install it or set HTTPX_BIN: %w", err)
	}
	return nil
}

// Probe 对目标列表文件执行指纹探测
// 返回 规范化主机 -> 技术栈列表 的画像，探测输出文件用后即删
func (p *Prober) Probe(ctx context.Context, targetsFile string) (model.TechProfile, error) {
	outPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("httpx_%s.json", strings.ReplaceAll(uuid.New().String(), "-", "")))
	defer os.Remove(outPath)

	args := []string{
		"-l", targetsFile,
		"-status-code",
		"-tech-detect",
		"-title",
		"-content-length",
		"-json",
		"-o", outPath,
	}
	logger.Infof("Httpx: %s %s", p.cfg.BinPath, strings.Join(args, " "))

	if _, err := p.commander.Run(ctx, p.cfg.BinPath, args, p.cfg.Timeout); err != nil {
		return nil, fmt.Errorf("httpx probe failed: %w", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read httpx output: %w", err)
	}
	return parseProfile(data), nil
}

// httpxRecord httpx JSONL 输出中本工具关心的字段
type httpxRecord struct {
	Host          string   `json:"host"`
	Input         string   `json:"input"`
	URL           string   `json:"url"`
	OriginalInput string   `json:"original-input"`
	Tech          []string `json:"tech"`
	Technologies  []string `json:"technologies"`
}

// parseProfile 解析 httpx JSONL 输出
// 主机字段优先级: host > input > url > original-input，全空或无法规范化的行跳过
// 同一主机多行（多端口）时技术栈去重合并
func parseProfile(data []byte) model.TechProfile {
	profile := make(model.TechProfile)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec httpxRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}

		host := ""
		for _, candidate := range []string{rec.Host, rec.Input, rec.URL, rec.OriginalInput} {
			if candidate == "" {
				continue
			}
			if h := utils.CanonicalHost(candidate); h != "" {
				host = h
				break
			}
		}
		if host == "" {
			continue
		}

		// 有响应但无指纹的主机也要出现在画像里
		if _, ok := profile[host]; !ok {
			profile[host] = nil
		}

		techs := rec.Tech
		if len(techs) == 0 {
			techs = rec.Technologies
		}
		for _, t := range techs {
			t = strings.TrimSpace(t)
			if t == "" || contains(profile[host], t) {
				continue
			}
			profile[host] = append(profile[host], t)
		}
	}
	return profile
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
