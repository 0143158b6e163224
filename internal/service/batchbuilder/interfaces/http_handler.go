// internal/service/batchbuilder/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"flashpromo/internal/pkg/logger"
	"flashpromo/internal/service/batchbuilder/application"
	"flashpromo/internal/service/batchbuilder/domain"
)

// BuilderHandler 封装了 batch-builder 服务的 HTTP 处理器
type BuilderHandler struct {
	service  *application.BuilderService
	validate *validator.Validate
}

func NewBuilderHandler(service *application.BuilderService) *BuilderHandler {
	return &BuilderHandler{service: service, validate: validator.New()}
}

// RegisterRoutes 在 router 上注册所有构建相关的路由，所有路由都经过会话中间件
func (h *BuilderHandler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/batch-builder").Subrouter()
	s.Use(SessionMiddleware)

	s.HandleFunc("", h.handleView).Methods(http.MethodGet)
	s.HandleFunc("", h.handleAbandon).Methods(http.MethodDelete)
	s.HandleFunc("/catalog", h.handleCatalog).Methods(http.MethodGet)
	s.HandleFunc("/folders", h.handleFolders).Methods(http.MethodGet)
	s.HandleFunc("/intake", h.handleIntake).Methods(http.MethodPost)
	s.HandleFunc("/permutations/{id}/toggle", h.handleToggle).Methods(http.MethodPost)
	s.HandleFunc("/select-all", h.handleSelectAll).Methods(http.MethodPost)
	s.HandleFunc("/terms/mechanic/{type}", h.handleApplyTerms).Methods(http.MethodPut)
	s.HandleFunc("/terms/{id}", h.handleSetTerms).Methods(http.MethodPut)
	s.HandleFunc("/advance", h.handleAdvance).Methods(http.MethodPost)
	s.HandleFunc("/back", h.handleBack).Methods(http.MethodPost)
	s.HandleFunc("/submit", h.handleSubmit).Methods(http.MethodPost)
}

func (h *BuilderHandler) handleView(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.View(r.Context(), SessionFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *BuilderHandler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, application.CatalogResponse{Catalog: h.service.Catalog()})
}

func (h *BuilderHandler) handleFolders(w http.ResponseWriter, r *http.Request) {
	merchantID := r.Header.Get(MerchantHeader)
	if merchantID == "" {
		writeError(w, r, domain.ValidationErrors{{Field: "merchantId", Reason: "required"}})
		return
	}
	folders, err := h.service.Folders(r.Context(), merchantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application.FoldersResponse{Folders: folders})
}

func (h *BuilderHandler) handleIntake(w http.ResponseWriter, r *http.Request) {
	var req application.IntakeRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.MerchantID = r.Header.Get(MerchantHeader)

	view, err := h.service.Generate(r.Context(), SessionFromContext(r.Context()), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *BuilderHandler) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, err := h.service.Toggle(r.Context(), SessionFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *BuilderHandler) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	var req application.SelectAllRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.SelectAll(r.Context(), SessionFromContext(r.Context()), *req.Selected)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *BuilderHandler) handleSetTerms(w http.ResponseWriter, r *http.Request) {
	var fields domain.TermFields
	if !h.decode(w, r, &fields) {
		return
	}
	view, err := h.service.SetTerms(r.Context(), SessionFromContext(r.Context()), mux.Vars(r)["id"], fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *BuilderHandler) handleApplyTerms(w http.ResponseWriter, r *http.Request) {
	var fields domain.TermFields
	if !h.decode(w, r, &fields) {
		return
	}
	view, err := h.service.ApplyTerms(r.Context(), SessionFromContext(r.Context()), mux.Vars(r)["type"], fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *BuilderHandler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Advance(r.Context(), SessionFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *BuilderHandler) handleBack(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Back(r.Context(), SessionFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *BuilderHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Submit(r.Context(), SessionFromContext(r.Context()))
	if err != nil {
		var subErr *domain.SubmissionError
		if result != nil && errors.As(err, &subErr) {
			logger.Ctx(r.Context()).Warn().Err(err).Msg("Submission failed")
			writeJSON(w, submissionStatus(subErr), result)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BuilderHandler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Abandon(r.Context(), SessionFromContext(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode 解码并校验请求体，失败时已经写好响应
func (h *BuilderHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_body", Message: "Invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			err = toValidationErrors(invalid)
		}
		writeError(w, r, err)
		return false
	}
	return true
}

func toValidationErrors(invalid validator.ValidationErrors) domain.ValidationErrors {
	out := make(domain.ValidationErrors, 0, len(invalid))
	for _, fe := range invalid {
		out = append(out, domain.ValidationError{Field: lowerFirst(fe.Field()), Reason: fe.Tag()})
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

type errorBody struct {
	Code        string                   `json:"code"`
	Message     string                   `json:"message"`
	Kind        string                   `json:"kind,omitempty"`
	FieldErrors []domain.ValidationError `json:"fieldErrors,omitempty"`
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs  domain.ValidationErrors
		subErr *domain.SubmissionError
		status int
		body   errorBody
	)
	switch {
	case errors.As(err, &verrs):
		status = http.StatusUnprocessableEntity
		body = errorBody{Code: "validation_failed", Message: "Some fields are missing or invalid", FieldErrors: verrs}
	case errors.As(err, &subErr):
		status = submissionStatus(subErr)
		body = errorBody{Code: subErr.Code, Message: subErr.Message, Kind: string(subErr.Kind), FieldErrors: subErr.FieldErrors}
	case errors.Is(err, domain.ErrTooManyPermutations):
		status, body = http.StatusBadRequest, errorBody{Code: "too_many_permutations", Message: err.Error()}
	case errors.Is(err, domain.ErrUnknownDimension):
		status, body = http.StatusBadRequest, errorBody{Code: "unknown_dimension", Message: err.Error()}
	case errors.Is(err, domain.ErrUnknownValue):
		status, body = http.StatusBadRequest, errorBody{Code: "unknown_value", Message: err.Error()}
	case errors.Is(err, domain.ErrNoSelection):
		status, body = http.StatusConflict, errorBody{Code: "no_selection", Message: err.Error()}
	case errors.Is(err, domain.ErrSubmissionInFlight):
		status, body = http.StatusConflict, errorBody{Code: "submission_in_flight", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidTransition):
		status, body = http.StatusConflict, errorBody{Code: "invalid_transition", Message: err.Error()}
	case errors.Is(err, domain.ErrNoActiveSelection):
		status, body = http.StatusNotFound, errorBody{Code: "no_active_selection", Message: err.Error()}
	case errors.Is(err, domain.ErrPermutationNotFound):
		status, body = http.StatusNotFound, errorBody{Code: "permutation_not_found", Message: err.Error()}
	default:
		status, body = http.StatusInternalServerError, errorBody{Code: "internal", Message: "Internal error"}
	}

	event := logger.Ctx(r.Context()).Warn()
	if !application.IsClientError(err) && subErr == nil {
		event = logger.Ctx(r.Context()).Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")

	writeJSON(w, status, body)
}

func submissionStatus(err *domain.SubmissionError) int {
	if err.Retryable() {
		return http.StatusServiceUnavailable
	}
	return http.StatusUnprocessableEntity
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
