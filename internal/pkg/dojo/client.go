/**
 * DefectDojo API v2 客户端
 * @author: sun977
 * @date: 2026.08.15
 * @description: 记录库的分页查询、产品/Engagement 创建、扫描结果导入
 * @func: Client 接口、httpClient 实现、分页抓取、multipart 上传
 */
package dojo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BananaMoustache/nuclei2dojo/internal/config"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/logger"
)

// ScanTypeNuclei 导入时声明的扫描器类型
const ScanTypeNuclei = "Nuclei Scan"

// Product 产品记录
type Product struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ProdType int    `json:"prod_type"`
}

// Engagement Engagement 记录
type Engagement struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Product int    `json:"product"`
}

// ProductType 产品类型记录
type ProductType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ImportForm import/reimport 的表单字段
type ImportForm struct {
	EngagementID    int
	ProductName     string
	EngagementName  string
	ProductTypeID   int
	ProductTypeName string
	ScanDate        string // "2006-01-02"，为空时由客户端填当天
	MinimumSeverity string // 为空时默认 Info
	DoNotReactivate bool   // reimport 时为 true，避免重新激活已关闭的发现
	FilePath        string // 扫描结果 JSON 文件
}

// ImportResult import/reimport 响应
// 记录库不同版本的计数字段名不统一，保留原始响应延迟解析
type ImportResult struct {
	Raw map[string]json.RawMessage
}

// countKeys 各版本记录库可能返回的计数字段，按优先级排列
var countKeys = []string{"findings_count", "results_count", "count", "imported_findings", "created", "success"}

// Count 从响应中提取导入的发现数量
// 所有候选字段都缺失时返回 (0, false)
func (r *ImportResult) Count() (int, bool) {
	return countFromRaw(r.Raw)
}

func countFromRaw(raw map[string]json.RawMessage) (int, bool) {
	if raw == nil {
		return 0, false
	}
	for _, key := range countKeys {
		if data, ok := raw[key]; ok {
			var n int
			if err := json.Unmarshal(data, &n); err == nil && n >= 0 {
				return n, true
			}
		}
	}
	for _, key := range []string{"result", "results"} {
		if data, ok := raw[key]; ok {
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(data, &nested); err == nil {
				if n, ok := countFromRaw(nested); ok {
					return n, true
				}
			}
		}
	}
	return 0, false
}

// Client 记录库客户端接口
// 所有列表操作透明地跟随分页，调用方永远拿到完整结果集
type Client interface {
	// FindProductByName 按名称精确查找产品，未找到返回 (nil, nil)
	FindProductByName(ctx context.Context, name string) (*Product, error)

	// CreateProduct 创建产品
	CreateProduct(ctx context.Context, name string, typeID int) (*Product, error)

	// FindEngagementByName 在产品下按名称查找 Engagement，未找到返回 (nil, nil)
	FindEngagementByName(ctx context.Context, productID int, name string) (*Engagement, error)

	// CreateEngagement 在产品下创建 Engagement
	CreateEngagement(ctx context.Context, productID int, name string) (*Engagement, error)

	// CountFindings 统计 Engagement 下已有的发现数量
	CountFindings(ctx context.Context, engagementID int) (int, error)

	// ChooseProductType 选择产品类型
	// 配置了 ID 直接使用；否则按名称匹配；都没有时取第一个
	ChooseProductType(ctx context.Context) (*ProductType, error)

	// ImportScan 首次导入扫描结果
	ImportScan(ctx context.Context, form *ImportForm) (*ImportResult, error)

	// ReimportScan 增量导入，由记录库完成去重
	ReimportScan(ctx context.Context, form *ImportForm) (*ImportResult, error)
}

// httpClient Client 的 HTTP 实现
type httpClient struct {
	cfg      *config.DojoConfig
	baseURL  string
	http     *http.Client
	uploader *http.Client
	sleep    func(context.Context, time.Duration) error // 测试中替换以跳过真实等待
}

// NewClient 创建记录库客户端
func NewClient(cfg *config.DojoConfig) Client {
	return &httpClient{
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		uploader: &http.Client{Timeout: cfg.UploadTimeout},
		sleep:    sleepContext,
	}
}

// sleepContext 可中断的退避等待，context 取消时立即返回
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// bodyFactory 每次重试重建请求体
// http.Request 的 Body 是一次性的，重试时不能复用
type bodyFactory func() (io.Reader, string, error)

func noBody() (io.Reader, string, error) {
	return nil, "", nil
}

func jsonBody(v interface{}) bodyFactory {
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("marshal request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// doRequest 执行一次 API 调用，瞬时错误 (429/5xx) 指数退避重试
// 认证错误和 404 不重试，直接按分级返回
func (c *httpClient) doRequest(ctx context.Context, client *http.Client, method, rawURL string, makeBody bodyFactory) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryDelay * time.Duration(1<<(attempt-1))
			logger.WithFields(logrus.Fields{
				"attempt": fmt.Sprintf("%d/%d", attempt, c.cfg.MaxRetries),
				"delay":   delay.String(),
			}).Warnf("Retrying %s %s: %v", method, rawURL, lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, contentType, err := makeBody()
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+c.cfg.Token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// 网络层错误按瞬时处理
			lastErr = fmt.Errorf("request %s %s: %w", method, rawURL, err)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		if err := classifyStatus(resp.StatusCode, string(respBody)); err != nil {
			if IsTransient(err) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return respBody, nil
	}

	return nil, fmt.Errorf("exhausted %d retries: %w", c.cfg.MaxRetries, lastErr)
}

// pagedResponse 记录库列表接口的分页外壳
type pagedResponse struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}

// pagedGet 跟随 limit/offset 分页抓取完整结果集
func (c *httpClient) pagedGet(ctx context.Context, path string, params url.Values) ([]json.RawMessage, error) {
	var items []json.RawMessage
	offset := 0

	for {
		query := url.Values{}
		for k, vs := range params {
			query[k] = vs
		}
		query.Set("limit", strconv.Itoa(c.cfg.PageSize))
		query.Set("offset", strconv.Itoa(offset))

		rawURL := c.baseURL + path + "?" + query.Encode()
		body, err := c.doRequest(ctx, c.http, http.MethodGet, rawURL, noBody)
		if err != nil {
			return nil, err
		}

		var page pagedResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode page %s: %w", path, err)
		}
		items = append(items, page.Results...)

		if page.Next == nil || *page.Next == "" {
			break
		}
		offset += c.cfg.PageSize
	}
	return items, nil
}

// FindProductByName 按名称精确查找产品
func (c *httpClient) FindProductByName(ctx context.Context, name string) (*Product, error) {
	params := url.Values{}
	params.Set("name", name)

	items, err := c.pagedGet(ctx, "/products/", params)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	// 服务端 name 过滤在部分版本上是前缀匹配，本地再做一次精确比对
	for _, item := range items {
		var p Product
		if err := json.Unmarshal(item, &p); err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(name)) {
			return &p, nil
		}
	}
	return nil, nil
}

// CreateProduct 创建产品
func (c *httpClient) CreateProduct(ctx context.Context, name string, typeID int) (*Product, error) {
	payload := map[string]interface{}{
		"name":        name,
		"description": "Created by nuclei2dojo",
		"prod_type":   typeID,
	}
	body, err := c.doRequest(ctx, c.http, http.MethodPost, c.baseURL+"/products/", jsonBody(payload))
	if err != nil {
		return nil, fmt.Errorf("create product %q: %w", name, err)
	}

	var p Product
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode created product: %w", err)
	}
	return &p, nil
}

// FindEngagementByName 在产品下按名称查找 Engagement
func (c *httpClient) FindEngagementByName(ctx context.Context, productID int, name string) (*Engagement, error) {
	params := url.Values{}
	params.Set("product", strconv.Itoa(productID))
	params.Set("name", name)

	items, err := c.pagedGet(ctx, "/engagements/", params)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list engagements: %w", err)
	}

	for _, item := range items {
		var e Engagement
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		if e.Product == productID && strings.EqualFold(strings.TrimSpace(e.Name), strings.TrimSpace(name)) {
			return &e, nil
		}
	}
	return nil, nil
}

// CreateEngagement 在产品下创建 Engagement
// 周期固定从当天开始，状态 In Progress
func (c *httpClient) CreateEngagement(ctx context.Context, productID int, name string) (*Engagement, error) {
	today := time.Now().UTC().Format("2006-01-02")
	payload := map[string]interface{}{
		"name":            name,
		"product":         productID,
		"target_start":    today,
		"target_end":      today,
		"status":          "In Progress",
		"engagement_type": "CI/CD",
	}
	body, err := c.doRequest(ctx, c.http, http.MethodPost, c.baseURL+"/engagements/", jsonBody(payload))
	if err != nil {
		return nil, fmt.Errorf("create engagement %q: %w", name, err)
	}

	var e Engagement
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode created engagement: %w", err)
	}
	return &e, nil
}

// CountFindings 统计 Engagement 下已有的发现数量
// 只取分页外壳的 count 字段，limit=1 减小响应体
func (c *httpClient) CountFindings(ctx context.Context, engagementID int) (int, error) {
	query := url.Values{}
	query.Set("test__engagement", strconv.Itoa(engagementID))
	query.Set("limit", "1")

	rawURL := c.baseURL + "/findings/?" + query.Encode()
	body, err := c.doRequest(ctx, c.http, http.MethodGet, rawURL, noBody)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count findings: %w", err)
	}

	var page pagedResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return 0, fmt.Errorf("decode findings count: %w", err)
	}
	return page.Count, nil
}

// ChooseProductType 选择产品类型
func (c *httpClient) ChooseProductType(ctx context.Context) (*ProductType, error) {
	if c.cfg.ProductTypeID > 0 {
		return &ProductType{ID: c.cfg.ProductTypeID, Name: c.cfg.ProductTypeName}, nil
	}

	items, err := c.pagedGet(ctx, "/product_types/", nil)
	if err != nil {
		return nil, fmt.Errorf("list product types: %w", err)
	}

	var types []ProductType
	for _, item := range items {
		var pt ProductType
		if err := json.Unmarshal(item, &pt); err == nil {
			types = append(types, pt)
		}
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("record store has no product types")
	}

	if want := strings.TrimSpace(c.cfg.ProductTypeName); want != "" {
		for i := range types {
			if strings.EqualFold(strings.TrimSpace(types[i].Name), want) {
				return &types[i], nil
			}
		}
		logger.Warnf("Product type %q not found, falling back to %q", want, types[0].Name)
	}
	return &types[0], nil
}

// ImportScan 首次导入扫描结果
func (c *httpClient) ImportScan(ctx context.Context, form *ImportForm) (*ImportResult, error) {
	form.DoNotReactivate = false
	return c.upload(ctx, "/import-scan/", form)
}

// ReimportScan 增量导入
func (c *httpClient) ReimportScan(ctx context.Context, form *ImportForm) (*ImportResult, error) {
	form.DoNotReactivate = true
	return c.upload(ctx, "/reimport-scan/", form)
}

// upload 以 multipart 表单上传扫描结果文件
func (c *httpClient) upload(ctx context.Context, path string, form *ImportForm) (*ImportResult, error) {
	body, err := c.doRequest(ctx, c.uploader, http.MethodPost, c.baseURL+path, c.multipartBody(form))
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	if err := json.Unmarshal(body, &result.Raw); err != nil {
		// 响应不是 JSON 对象时不视为失败，计数按缺失处理
		logger.Warnf("Import response is not a JSON object: %.200s", string(body))
	}
	return result, nil
}

// multipartBody 构造 multipart 请求体
// 每次重试重新读取文件并重建表单
func (c *httpClient) multipartBody(form *ImportForm) bodyFactory {
	return func() (io.Reader, string, error) {
		file, err := os.Open(form.FilePath)
		if err != nil {
			return nil, "", fmt.Errorf("open scan file: %w", err)
		}
		defer file.Close()

		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		scanDate := form.ScanDate
		if scanDate == "" {
			scanDate = time.Now().UTC().Format("2006-01-02")
		}
		minSeverity := form.MinimumSeverity
		if minSeverity == "" {
			minSeverity = "Info"
		}

		fields := map[string]string{
			"engagement":          strconv.Itoa(form.EngagementID),
			"scan_type":           ScanTypeNuclei,
			"scan_date":           scanDate,
			"active":              "true",
			"verified":            "false",
			"minimum_severity":    minSeverity,
			"close_old_findings":  "false",
			"push_to_jira":        "false",
			"auto_create_context": "true",
			"product_name":        form.ProductName,
			"engagement_name":     form.EngagementName,
			"do_not_reactivate":   strconv.FormatBool(form.DoNotReactivate),
			"create_endpoints":    "true",
		}
		if form.ProductTypeID > 0 {
			fields["product_type"] = strconv.Itoa(form.ProductTypeID)
		}
		if form.ProductTypeName != "" {
			fields["product_type_name"] = form.ProductTypeName
		}
		for k, v := range fields {
			if err := writer.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("write form field %s: %w", k, err)
			}
		}

		part, err := writer.CreateFormFile("file", filepath.Base(form.FilePath))
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", fmt.Errorf("copy scan file: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, "", fmt.Errorf("finalize multipart body: %w", err)
		}
		return &buf, writer.FormDataContentType(), nil
	}
}
