/**
 * 主机到产品/Engagement 解析器
 * @author: sun977
 * @date: 2026.08.15
 * @description: 按命名模板把主机解析到记录库产品和 Engagement，未命中即创建，运行期缓存
 * @func: Resolver、Resolve、RenderProductName
 */
package dojo

import (
	"context"
	"fmt"
	"strings"

	"github.com/BananaMoustache/nuclei2dojo/internal/config"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/logger"
	"github.com/BananaMoustache/nuclei2dojo/internal/pkg/utils"
)

// Resolution 一个主机的解析结果
type Resolution struct {
	Product    *Product
	Engagement *Engagement
}

// Resolver 主机解析器
// 缓存仅在一次运行内有效，不做跨运行持久化
type Resolver struct {
	cfg    *config.DojoConfig
	client Client

	// 缓存 key 为规范化主机
	resolutions map[string]*Resolution
	productType *ProductType

	// 测试中替换 DNS 解析
	resolveIP func(string) string
}

// NewResolver 创建解析器
func NewResolver(cfg *config.DojoConfig, client Client) *Resolver {
	return &Resolver{
		cfg:         cfg,
		client:      client,
		resolutions: make(map[string]*Resolution),
		resolveIP:   utils.ResolveIP,
	}
}

// RenderProductName 按命名模板渲染产品名
// 模板支持 {host} 和 {ip} 占位符，IP 解析失败时 {ip} 置空
func (r *Resolver) RenderProductName(host string) string {
	name := strings.ReplaceAll(r.cfg.ProductNameFormat, "{host}", host)
	if strings.Contains(name, "{ip}") {
		name = strings.ReplaceAll(name, "{ip}", r.resolveIP(host))
	}
	return name
}

// RenderEngagementName 按命名模板渲染 Engagement 名
func (r *Resolver) RenderEngagementName(host string) string {
	return strings.ReplaceAll(r.cfg.EngagementNameFormat, "{host}", host)
}

// Resolve 解析主机到 (产品, Engagement)，两者都未命中即创建
// 同一次运行内重复解析同一主机不会产生第二次查询或创建
func (r *Resolver) Resolve(ctx context.Context, host string) (*Resolution, error) {
	if cached, ok := r.resolutions[host]; ok {
		return cached, nil
	}

	product, err := r.resolveProduct(ctx, host)
	if err != nil {
		return nil, err
	}

	engName := r.RenderEngagementName(host)
	engagement, err := r.client.FindEngagementByName(ctx, product.ID, engName)
	if err != nil {
		return nil, fmt.Errorf("resolve engagement for %s: %w", host, err)
	}
	if engagement == nil {
		engagement, err = r.client.CreateEngagement(ctx, product.ID, engName)
		if err != nil {
			return nil, fmt.Errorf("create engagement for %s: %w", host, err)
		}
		logger.Infof("Created engagement %q (id=%d) under product %q", engName, engagement.ID, product.Name)
	}

	res := &Resolution{Product: product, Engagement: engagement}
	r.resolutions[host] = res
	return res, nil
}

// resolveProduct 查找或创建主机对应的产品
// 精确名称未命中且开启回退时，先用 base 域名渲染的名称再查一次
func (r *Resolver) resolveProduct(ctx context.Context, host string) (*Product, error) {
	name := r.RenderProductName(host)
	product, err := r.client.FindProductByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve product for %s: %w", host, err)
	}
	if product != nil {
		return product, nil
	}

	if r.cfg.AllowBaseDomainFallback {
		if base := utils.BaseDomain(host); base != "" && base != host {
			baseName := r.RenderProductName(base)
			product, err = r.client.FindProductByName(ctx, baseName)
			if err != nil {
				return nil, fmt.Errorf("resolve base-domain product for %s: %w", host, err)
			}
			if product != nil {
				logger.Infof("Host %s matched base-domain product %q", host, product.Name)
				return product, nil
			}
		}
	}

	pt, err := r.productTypeOnce(ctx)
	if err != nil {
		return nil, err
	}
	product, err = r.client.CreateProduct(ctx, name, pt.ID)
	if err != nil {
		return nil, fmt.Errorf("create product for %s: %w", host, err)
	}
	logger.Infof("Created product %q (id=%d, type=%d)", product.Name, product.ID, pt.ID)
	return product, nil
}

// productTypeOnce 产品类型选择结果在一次运行内复用
func (r *Resolver) productTypeOnce(ctx context.Context) (*ProductType, error) {
	if r.productType != nil {
		return r.productType, nil
	}
	pt, err := r.client.ChooseProductType(ctx)
	if err != nil {
		return nil, fmt.Errorf("choose product type: %w", err)
	}
	r.productType = pt
	return pt, nil
}

// ProductTypeInfo 返回已缓存的产品类型，尚未解析过时返回 nil
func (r *Resolver) ProductTypeInfo() *ProductType {
	return r.productType
}
