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
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Resolver 把服务名解析成 base URL（例如 http://10.0.0.3:8090）
type Resolver interface {
	ResolveBaseURL(serviceName string) (string, error)
}

// StaticResolver 是按配置写死地址的 Resolver，未启用 Nacos 时使用
type StaticResolver map[string]string

func (s StaticResolver) ResolveBaseURL(serviceName string) (string, error) {
	base, ok := s[serviceName]
	if !ok || base == "" {
		return "", fmt.Errorf("no address configured for service '%s'", serviceName)
	}
	return strings.TrimRight(base, "/"), nil
}

// Client 是一个可追踪的、可注入的HTTP客户端
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	Resolver   Resolver
}

// Response 是下游返回的原始响应，非 2xx 不视为 error，由适配器自己解释
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewClient 创建一个新的客户端实例
func NewClient(tracer trace.Tracer, resolver Resolver) *Client {
	// 不设置 Timeout 字段，让其完全受控于每次请求传入的 context
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:     tracer,
		HTTPClient: httpClient,
		Resolver:   resolver,
	}
}

// CallService 调用 serviceName 上的 path，body 非 nil 时按 JSON 编码
func (c *Client) CallService(ctx context.Context, serviceName, method, path string, query url.Values, header http.Header, body any) (*Response, error) {
	base, err := c.Resolver.ResolveBaseURL(serviceName)
	if err != nil {
		return nil, err
	}
	downstreamURL, err := url.Parse(base + path)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		downstreamURL.RawQuery = query.Encode()
	}

	ctx, span := c.Tracer.Start(ctx, fmt.Sprintf("call-%s", serviceName), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, downstreamURL.String(), reader)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	span.SetAttributes(
		attribute.String("http.url", downstreamURL.String()),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read response from %s: %w", serviceName, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}
