/**
 * 扫描结果按主机分桶
 * @author: sun977
 * @date: 2026.08.14
 * @description: 解析 nuclei 合并导出文件，按规范化主机拆分并写出 per-host JSON
 * @func: DecodeFile、Split、WriteHostFiles
 */
package partition

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BananaMoustache/nuclei2dojo/internal/core/model"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/logger"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/utils"
)

// HostResultSet 按主机分桶后的结果集
type HostResultSet struct {
	buckets map[string][]*model.Record
	total   int
}

// Hosts 返回排序后的主机列表，保证上传顺序确定
func (s *HostResultSet) Hosts() []string {
	hosts := make([]string, 0, len(s.buckets))
	for h := range s.buckets {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Records 返回指定主机的记录
func (s *HostResultSet) Records(host string) []*model.Record {
	return s.buckets[host]
}

// Total 返回记录总数
func (s *HostResultSet) Total() int {
	return s.total
}

// Len 返回主机数
func (s *HostResultSet) Len() int {
	return len(s.buckets)
}

// DecodeFile 解析 nuclei 导出文件中的全部记录
// 兼容三种格式: JSON 数组、单个 JSON 对象、JSONL
// JSONL 模式下无法解析的行跳过并告警，不中断整体流程
func DecodeFile(path string) ([]*model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nuclei export %s: %w", path, err)
	}
	return Decode(data), nil
}

// Decode 解析 nuclei 导出字节流，见 DecodeFile
func Decode(data []byte) []*model.Record {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	// 先按整体 JSON 解析（数组或单对象）
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err == nil {
		return decodeRaws(raws)
	}
	var single map[string]json.RawMessage
	if err := json.Unmarshal(data, &single); err == nil {
		return decodeRaws([]json.RawMessage{json.RawMessage(data)})
	}

	// 回退 JSONL 逐行解析
	var records []*model.Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := decodeOne(line)
		if err != nil {
			logger.Warnf("Skipping malformed result line: %v", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

func decodeRaws(raws []json.RawMessage) []*model.Record {
	records := make([]*model.Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := decodeOne(raw)
		if err != nil {
			logger.Warnf("Skipping malformed result record: %v", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

func decodeOne(raw []byte) (*model.Record, error) {
	var finding model.RawFinding
	if err := json.Unmarshal(raw, &finding); err != nil {
		return nil, err
	}
	rec := &model.Record{Finding: finding}
	rec.Raw = append(rec.Raw, raw...)
	return rec, nil
}

// hostOf 从记录中提取规范化主机
// 按候选字段优先级取第一个能产出有效主机的值，全部失败返回空串
func hostOf(rec *model.Record) string {
	for _, candidate := range rec.HostKeyCandidates() {
		if candidate == "" {
			continue
		}
		if h := utils.CanonicalHost(candidate); h != "" {
			return h
		}
	}
	return ""
}

// Split 将记录按规范化主机分桶
// 提取不出主机的记录丢弃并告警，不计入结果集
func Split(records []*model.Record) *HostResultSet {
	set := &HostResultSet{buckets: make(map[string][]*model.Record)}
	for _, rec := range records {
		host := hostOf(rec)
		if host == "" {
			logger.Warnf("Dropping result %q without an identifiable host", rec.Finding.TemplateID)
			continue
		}
		set.buckets[host] = append(set.buckets[host], rec)
		set.total++
	}
	return set
}

// WriteHostFile 将单个主机的记录写为 JSON 数组文件
// 文件名格式: nuclei_<host-slug>_<ts>.json，记录按原始字节透传
func WriteHostFile(outDir, host, ts string, records []*model.Record) (string, error) {
	if err := utils.EnsureDir(outDir); err != nil {
		return "", err
	}

	path := filepath.Join(outDir, fmt.Sprintf("nuclei_%s_%s.json", utils.Slugify(host), ts))
	raws := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		raws = append(raws, rec.Raw)
	}
	data, err := json.MarshalIndent(raws, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal host records: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write host file %s: %w", path, err)
	}
	return path, nil
}

// WriteHostFiles 写出所有主机的结果文件
// 返回 host -> 文件路径 的映射，主机顺序由调用方通过 Hosts() 控制
func WriteHostFiles(set *HostResultSet, outDir, ts string) (map[string]string, error) {
	files := make(map[string]string, set.Len())
	for _, host := range set.Hosts() {
		path, err := WriteHostFile(outDir, host, ts, set.Records(host))
		if err != nil {
			return files, err
		}
		files[host] = path
	}
	return files, nil
}
