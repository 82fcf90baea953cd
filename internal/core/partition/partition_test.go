package partition

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleArray = `[
  {"template-id":"tech-detect","host":"https://a.com","info":{"name":"Tech","severity":"info"}},
  {"template-id":"cve-x","host":"a.com:443","info":{"name":"X","severity":"high"}},
  {"template-id":"panel","url":"http://b.com:8080/admin","info":{"name":"Panel","severity":"low"}}
]`

// TestDecodeFormats 验证数组、单对象、JSONL 三种导出格式都能解析
func TestDecodeFormats(t *testing.T) {
	if got := len(Decode([]byte(sampleArray))); got != 3 {
		t.Fatalf("array decode = %d records, want 3", got)
	}

	single := `{"template-id":"x","host":"a.com","info":{"severity":"info"}}`
	if got := len(Decode([]byte(single))); got != 1 {
		t.Fatalf("single object decode = %d records, want 1", got)
	}

	jsonl := strings.Join([]string{
		`{"template-id":"x","host":"a.com"}`,
		`not json at all`,
		`{"template-id":"y","host":"b.com"}`,
		``,
	}, "\n")
	if got := len(Decode([]byte(jsonl))); got != 2 {
		t.Fatalf("jsonl decode = %d records, want 2 (bad line skipped)", got)
	}

	if got := Decode([]byte("  \n ")); got != nil {
		t.Fatalf("empty input should decode to nil, got %v", got)
	}
}

// TestDecodePreservesRaw 验证 Raw 字节与输入逐字节一致（含未解析字段）
func TestDecodePreservesRaw(t *testing.T) {
	line := `{"template-id":"x","host":"a.com","extra-field":{"nested":true}}`
	records := Decode([]byte(line))
	if len(records) != 1 {
		t.Fatalf("decode = %d records, want 1", len(records))
	}

	var roundtrip map[string]interface{}
	if err := json.Unmarshal(records[0].Raw, &roundtrip); err != nil {
		t.Fatalf("raw bytes not valid JSON: %v", err)
	}
	if _, ok := roundtrip["extra-field"]; !ok {
		t.Error("raw bytes lost unparsed field")
	}
}

// TestSplitCoalescesHostVariants 验证同一主机的 URL/端口变体合并到同一个桶
func TestSplitCoalescesHostVariants(t *testing.T) {
	set := Split(Decode([]byte(sampleArray)))

	if set.Total() != 3 {
		t.Errorf("total = %d, want 3", set.Total())
	}
	if got := set.Hosts(); !reflect.DeepEqual(got, []string{"a.com", "b.com"}) {
		t.Fatalf("hosts = %v, want [a.com b.com]", got)
	}
	if got := len(set.Records("a.com")); got != 2 {
		t.Errorf("a.com bucket = %d records, want 2", got)
	}
	if got := len(set.Records("b.com")); got != 1 {
		t.Errorf("b.com bucket = %d records, want 1", got)
	}
}

// TestSplitDropsHostlessRecords 验证无主机字段的记录被丢弃且不计入总数
func TestSplitDropsHostlessRecords(t *testing.T) {
	set := Split(Decode([]byte(`[
	  {"template-id":"x","info":{"severity":"info"}},
	  {"template-id":"y","host":"a.com"}
	]`)))
	if got := set.Hosts(); !reflect.DeepEqual(got, []string{"a.com"}) {
		t.Fatalf("hosts = %v, want [a.com]", got)
	}
	if set.Total() != 1 {
		t.Errorf("total = %d, want 1 (hostless record dropped)", set.Total())
	}
}

// TestSplitFallbackFields 验证 host 为空时依次回退 ip/url/matched-at
func TestSplitFallbackFields(t *testing.T) {
	set := Split(Decode([]byte(`[
	  {"template-id":"a","ip":"10.0.0.1"},
	  {"template-id":"b","matched-at":"https://c.com:8443/x"}
	]`)))
	if got := set.Hosts(); !reflect.DeepEqual(got, []string{"10.0.0.1", "c.com"}) {
		t.Fatalf("hosts = %v", got)
	}
}

// TestWriteHostFiles 验证写出文件命名和内容
func TestWriteHostFiles(t *testing.T) {
	dir := t.TempDir()
	set := Split(Decode([]byte(sampleArray)))

	files, err := WriteHostFiles(set, dir, "20260814_120000")
	if err != nil {
		t.Fatalf("WriteHostFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}

	path, ok := files["a.com"]
	if !ok {
		t.Fatal("missing a.com file")
	}
	if want := filepath.Join(dir, "nuclei_a.com_20260814_120000.json"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read host file: %v", err)
	}
	var arr []map[string]interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		t.Fatalf("host file is not a JSON array: %v", err)
	}
	if len(arr) != 2 {
		t.Errorf("a.com file = %d records, want 2", len(arr))
	}
}
