// internal/service/offer/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"flashpromo/internal/pkg/logger"
	"flashpromo/internal/service/offer/application"
	"flashpromo/internal/service/offer/domain"
)

const idempotencyKeyHeader = "Idempotency-Key"

// OfferHandler 封装了 offer 服务的 HTTP 处理器
type OfferHandler struct {
	service  *application.OfferService
	validate *validator.Validate
}

// NewOfferHandler 创建一个新的 HTTP 处理器实例
func NewOfferHandler(service *application.OfferService) *OfferHandler {
	return &OfferHandler{service: service, validate: validator.New()}
}

// RegisterRoutes 在 router 上注册所有路由
func (h *OfferHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/offers/batch", h.handleCreateBatch).Methods(http.MethodPost)
	r.HandleFunc("/folders", h.handleListFolders).Methods(http.MethodGet)
}

type errorBody struct {
	Code        string              `json:"code"`
	Message     string              `json:"message"`
	FieldErrors []domain.FieldError `json:"fieldErrors,omitempty"`
}

func (h *OfferHandler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req application.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_body", Message: "Invalid request body"})
		return
	}
	if key := r.Header.Get(idempotencyKeyHeader); key != "" {
		if req.IdempotencyToken == "" {
			req.IdempotencyToken = key
		} else if key != req.IdempotencyToken {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: "token_mismatch", Message: "Idempotency-Key header does not match idempotencyToken"})
			return
		}
	}
	if status, body := h.checkRequest(&req); body != nil {
		writeJSON(w, status, body)
		return
	}

	resp, err := h.service.CreateBatch(r.Context(), &req)
	if err != nil {
		// 根据错误类型返回不同的 HTTP 状态码
		var rejection *domain.RejectionError
		switch {
		case errors.As(err, &rejection):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Code: rejection.Code, Message: rejection.Message, FieldErrors: rejection.FieldErrors})
		case errors.Is(err, domain.ErrIdempotencyConflict):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Code: "idempotency_conflict", Message: err.Error()})
		case errors.Is(err, domain.ErrRequestInProgress):
			writeJSON(w, http.StatusConflict, errorBody{Code: "request_in_progress", Message: err.Error()})
		default:
			logger.Ctx(r.Context()).Error().Err(err).Str("batch_token", req.IdempotencyToken).Msg("Batch create failed")
			writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "Internal error"})
		}
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// checkRequest 做结构校验，失败时返回状态码和响应体；校验器本身出错也按坏请求处理
func (h *OfferHandler) checkRequest(req any) (int, *errorBody) {
	err := h.validate.Struct(req)
	if err == nil {
		return 0, nil
	}
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return http.StatusBadRequest, &errorBody{Code: "invalid_body", Message: err.Error()}
	}
	fieldErrors := make([]domain.FieldError, 0, len(invalid))
	for _, fe := range invalid {
		fieldErrors = append(fieldErrors, domain.FieldError{Field: fe.Field(), Reason: fe.Tag()})
	}
	return http.StatusUnprocessableEntity, &errorBody{Code: "validation_failed", Message: "Request is invalid", FieldErrors: fieldErrors}
}

func (h *OfferHandler) handleListFolders(w http.ResponseWriter, r *http.Request) {
	merchantID := r.URL.Query().Get("merchantId")
	if merchantID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "missing_merchant", Message: "merchantId is required"})
		return
	}
	folders, err := h.service.ListFolders(r.Context(), merchantID)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Str("merchant_id", merchantID).Msg("List folders failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "Internal error"})
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
