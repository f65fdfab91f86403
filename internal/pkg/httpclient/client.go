// internal/pkg/httpclient/client.go
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InstanceResolver 把逻辑服务名解析为一个健康实例的地址。
// Nacos 客户端天然实现了该接口；本地开发可用 StaticResolver。
type InstanceResolver interface {
	DiscoverServiceInstance(serviceName string) (string, int, error)
}

// StatusError 表示下游服务返回了非 2xx 状态码。
// 适配器据此把下游语义翻译成领域错误。
type StatusError struct {
	StatusCode int
	Service    string
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service %s%s returned status %d: %s", e.Service, e.Path, e.StatusCode, e.Body)
}

// StaticResolver 用固定的地址表做服务发现，供本地开发和测试使用。
type StaticResolver map[string]string

func (r StaticResolver) DiscoverServiceInstance(serviceName string) (string, int, error) {
	addr, ok := r[serviceName]
	if !ok {
		return "", 0, fmt.Errorf("no static address configured for service '%s'", serviceName)
	}
	u, err := url.Parse("http://" + addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid static address for service '%s': %w", serviceName, err)
	}
	port := 80
	if p := u.Port(); p != "" {
		fmt.Sscanf(p, "%d", &port)
	}
	return u.Hostname(), port, nil
}

// Client 是一个可追踪的、可注入的HTTP客户端。
// 所有出站调用通过 resolver 做服务发现，并向下游传播 trace 上下文。
type Client struct {
	tracer     trace.Tracer
	resolver   InstanceResolver
	httpClient *http.Client
}

// NewClient 创建一个新的客户端实例
func NewClient(tracer trace.Tracer, resolver InstanceResolver) *Client {
	// 不设置全局 Timeout，让每次请求完全受控于传入的 context
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		tracer:     tracer,
		resolver:   resolver,
		httpClient: httpClient,
	}
}

// GetJSON 调用下游服务的 GET 接口并把响应体解码到 out。
func (c *Client) GetJSON(ctx context.Context, serviceName, path string, params url.Values, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, serviceName, path, params, nil, out)
}

// PostJSON 调用下游服务的 POST 接口，body 会被编码为 JSON，响应体解码到 out。
// out 为 nil 时忽略响应体。
func (c *Client) PostJSON(ctx context.Context, serviceName, path string, body interface{}, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, serviceName, path, nil, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, serviceName, path string, params url.Values, body, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("call-%s", serviceName), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// 1. 服务发现
	host, port, err := c.resolver.DiscoverServiceInstance(serviceName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	downstreamURL := url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   path,
	}
	if params != nil {
		downstreamURL.RawQuery = params.Encode()
	}

	// 2. 编码请求体
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			span.RecordError(err)
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, downstreamURL.String(), reqBody)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	span.SetAttributes(
		attribute.String("http.url", downstreamURL.String()),
		attribute.String("http.method", method),
		attribute.String("peer.service", serviceName),
	)
	// 3. 注入追踪上下文，向下游传播
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := &StatusError{
			StatusCode: resp.StatusCode,
			Service:    serviceName,
			Path:       path,
			Body:       string(respBody),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to decode response from %s%s: %w", serviceName, path, err)
		}
	}
	return nil
}
