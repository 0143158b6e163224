// internal/service/offer/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBatchNotFound       = errors.New("batch not found")
	ErrDuplicateToken      = errors.New("a batch with this idempotency token already exists")
	ErrIdempotencyConflict = errors.New("idempotency token was already used for a different batch")
	ErrRequestInProgress   = errors.New("a request with this idempotency token is still being processed")
)

// FieldError 是某条草稿上的一个字段错误
type FieldError struct {
	PermutationID string `json:"permutationId,omitempty"`
	Field         string `json:"field"`
	Reason        string `json:"reason"`
}

// RejectionError 表示整批请求被拒绝，没有任何优惠被创建
type RejectionError struct {
	Code        string
	Message     string
	FieldErrors []FieldError
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("batch rejected (%s): %s", e.Code, e.Message)
}

func NewRejection(code, message string, fieldErrors []FieldError) *RejectionError {
	return &RejectionError{Code: code, Message: message, FieldErrors: fieldErrors}
}
