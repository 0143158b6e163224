// internal/service/batchbuilder/infrastructure/adapter/offer_http_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"flashpromo/internal/pkg/httpclient"
	"flashpromo/internal/service/batchbuilder/domain"
	"flashpromo/internal/service/batchbuilder/domain/port"
)

const (
	offerBatchPath       = "/offers/batch"
	IdempotencyKeyHeader = "Idempotency-Key"

	// codeRequestInProgress 是 Offer 服务在同一 token 的请求仍在处理时返回的错误码
	codeRequestInProgress = "request_in_progress"
)

// OfferHTTPAdapter 实现了 port.OfferService 接口。
type OfferHTTPAdapter struct {
	client      *httpclient.Client
	serviceName string
}

func NewOfferHTTPAdapter(client *httpclient.Client, serviceName string) *OfferHTTPAdapter {
	return &OfferHTTPAdapter{client: client, serviceName: serviceName}
}

type batchCreateResponse struct {
	CreatedIDs []string `json:"createdIds"`
}

type errorResponse struct {
	Code        string                   `json:"code"`
	Message     string                   `json:"message"`
	FieldErrors []domain.ValidationError `json:"fieldErrors,omitempty"`
}

// BatchCreate 201 为新建，200 为服务端按 token 重放的原结果；4xx 为拒绝，5xx 为可重试
func (a *OfferHTTPAdapter) BatchCreate(ctx context.Context, req *port.BatchCreateRequest) (*port.BatchCreateResult, error) {
	header := http.Header{}
	header.Set(IdempotencyKeyHeader, req.IdempotencyToken)

	resp, err := a.client.CallService(ctx, a.serviceName, http.MethodPost, offerBatchPath, nil, header, req)
	if err != nil {
		return nil, errors.Wrap(err, "batch create request failed")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body batchCreateResponse
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			// 服务端可能已经创建成功，重试会拿到重放结果
			return nil, domain.NewTransientError("bad_response", "offer service returned an unreadable response", err)
		}
		return &port.BatchCreateResult{
			CreatedIDs: body.CreatedIDs,
			Replayed:   resp.StatusCode == http.StatusOK,
		}, nil

	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		body := decodeError(resp)
		return nil, domain.NewTransientError(body.Code, body.Message, fmt.Errorf("offer service responded %d", resp.StatusCode))

	default:
		body := decodeError(resp)
		if resp.StatusCode == http.StatusConflict && body.Code == codeRequestInProgress {
			return nil, domain.NewTransientError(body.Code, body.Message, nil)
		}
		return nil, domain.NewRejectedError(body.Code, body.Message, body.FieldErrors)
	}
}

func decodeError(resp *httpclient.Response) errorResponse {
	var body errorResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.Code == "" {
		body.Code = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}
	return body
}
