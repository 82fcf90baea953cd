package dojo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BananaMoustache/nuclei2dojo/internal/config"
)

func testConfig(baseURL string) *config.DojoConfig {
	return &config.DojoConfig{
		URL:                  baseURL,
		Token:                "secret-token",
		ProductTypeName:      "Research and Development",
		ProductNameFormat:    "ASM ({host})",
		EngagementNameFormat: "ASM - {host}",
		Timeout:              5 * time.Second,
		UploadTimeout:        5 * time.Second,
		MaxRetries:           2,
		RetryDelay:           time.Millisecond,
		PageSize:             2,
	}
}

func newTestClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(testConfig(srv.URL)).(*httpClient)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c, srv
}

// TestPagedGetFollowsPagination 验证分页抓取累计全部页，不重不漏
func TestPagedGetFollowsPagination(t *testing.T) {
	pages := map[string]string{
		"0": `{"count":5,"next":"http://x/products/?limit=2&offset=2","results":[{"id":1,"name":"p1"},{"id":2,"name":"p2"}]}`,
		"2": `{"count":5,"next":"http://x/products/?limit=2&offset=4","results":[{"id":3,"name":"p3"},{"id":4,"name":"p4"}]}`,
		"4": `{"count":5,"next":null,"results":[{"id":5,"name":"ASM (a.com)"}]}`,
	}

	var requests int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "Token secret-token", r.Header.Get("Authorization"))
		page, ok := pages[r.URL.Query().Get("offset")]
		require.True(t, ok, "unexpected offset %s", r.URL.Query().Get("offset"))
		fmt.Fprint(w, page)
	}))

	p, err := client.FindProductByName(context.Background(), "ASM (a.com)")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 5, p.ID)
	assert.Equal(t, 3, requests)
}

func TestFindProductByNameExactMatchOnly(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 服务端做了前缀匹配，返回一个近似名
		fmt.Fprint(w, `{"count":1,"next":null,"results":[{"id":9,"name":"ASM (a.com) staging"}]}`)
	}))

	p, err := client.FindProductByName(context.Background(), "ASM (a.com)")
	require.NoError(t, err)
	assert.Nil(t, p, "prefix match must not count as exact match")
}

// TestAuthFailureIsFatal 验证 401/403 直接归类为 ErrAuth 且不重试
func TestAuthFailureIsFatal(t *testing.T) {
	var requests int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.FindProductByName(context.Background(), "x")
	require.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, 1, requests, "auth errors must not be retried")
}

// TestTransientErrorsRetried 验证 5xx 重试后成功
func TestTransientErrorsRetried(t *testing.T) {
	var requests int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"count":0,"next":null,"results":[]}`)
	}))

	p, err := client.FindProductByName(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 3, requests)
}

func TestRetriesExhausted(t *testing.T) {
	var requests int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.FindProductByName(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	// 首次请求 + MaxRetries 次重试
	assert.Equal(t, 3, requests)
}

// TestBackoffAbortsOnCancel 验证退避等待期间取消 context 立即返回，不等满延迟
func TestBackoffAbortsOnCancel(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.RetryDelay = 5 * time.Second
	client := NewClient(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err := client.FindProductByName(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancel must cut the backoff short")
	assert.Equal(t, 1, requests)
}

// TestClientErrorNotRetried 验证普通 4xx 不重试
func TestClientErrorNotRetried(t *testing.T) {
	var requests int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"detail":"bad filter"}`)
	}))

	_, err := client.FindProductByName(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, 1, requests)
}

func TestCountFindings(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/findings/", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("test__engagement"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"count":17,"next":null,"results":[{"id":1}]}`)
	}))

	n, err := client.CountFindings(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 17, n)
}

func TestCountFindingsNotFoundIsZero(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	n, err := client.CountFindings(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestChooseProductType(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/product_types/", r.URL.Path)
		fmt.Fprint(w, `{"count":2,"next":null,"results":[{"id":1,"name":"Other"},{"id":7,"name":"research and development"}]}`)
	}))

	pt, err := client.ChooseProductType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, pt.ID, "name match is case-insensitive")
}

func TestChooseProductTypeConfiguredID(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.ProductTypeID = 12
	client := NewClient(cfg)

	pt, err := client.ChooseProductType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, pt.ID, "configured ID must not hit the API")
}

// TestImportScanForm 验证 multipart 表单字段和文件内容
func TestImportScanForm(t *testing.T) {
	dir := t.TempDir()
	scanFile := filepath.Join(dir, "nuclei_a.com_x.json")
	require.NoError(t, os.WriteFile(scanFile, []byte(`[{"template-id":"x"}]`), 0o644))

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/import-scan/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "55", r.FormValue("engagement"))
		assert.Equal(t, "Nuclei Scan", r.FormValue("scan_type"))
		assert.Equal(t, "Info", r.FormValue("minimum_severity"))
		assert.Equal(t, "false", r.FormValue("do_not_reactivate"))
		assert.Equal(t, "true", r.FormValue("auto_create_context"))
		assert.Equal(t, "ASM (a.com)", r.FormValue("product_name"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "nuclei_a.com_x.json", header.Filename)

		fmt.Fprint(w, `{"findings_count":3}`)
	}))

	res, err := client.ImportScan(context.Background(), &ImportForm{
		EngagementID:   55,
		ProductName:    "ASM (a.com)",
		EngagementName: "ASM - a.com",
		FilePath:       scanFile,
	})
	require.NoError(t, err)
	n, ok := res.Count()
	assert.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestReimportScanSetsDoNotReactivate(t *testing.T) {
	dir := t.TempDir()
	scanFile := filepath.Join(dir, "scan.json")
	require.NoError(t, os.WriteFile(scanFile, []byte(`[]`), 0o644))

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reimport-scan/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "true", r.FormValue("do_not_reactivate"))
		fmt.Fprint(w, `{"ok":true}`)
	}))

	res, err := client.ReimportScan(context.Background(), &ImportForm{EngagementID: 1, FilePath: scanFile})
	require.NoError(t, err)
	_, ok := res.Count()
	assert.False(t, ok, "count should be reported missing when no known key exists")
}

// TestImportResultCount 验证不同版本响应的计数字段提取
func TestImportResultCount(t *testing.T) {
	cases := []struct {
		body string
		want int
		ok   bool
	}{
		{`{"findings_count": 4}`, 4, true},
		{`{"count": 0}`, 0, true},
		{`{"result": {"created": 9}}`, 9, true},
		{`{"results": {"success": 2}}`, 2, true},
		{`{"findings_count": "4"}`, 0, false},
		{`{"unrelated": 1}`, 0, false},
	}

	for _, c := range cases {
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(c.body), &raw))
		res := &ImportResult{Raw: raw}
		n, ok := res.Count()
		assert.Equal(t, c.ok, ok, "body %s", c.body)
		assert.Equal(t, c.want, n, "body %s", c.body)
	}
}
