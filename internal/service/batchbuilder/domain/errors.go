// internal/service/batchbuilder/domain/errors.go
package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// 生成阶段
	ErrTooManyPermutations = errors.New("too many permutations")
	ErrUnknownDimension    = errors.New("unknown dimension")
	ErrUnknownValue        = errors.New("unknown dimension value")

	// 工作存储
	ErrCorruptedSelection = errors.New("stored selection is corrupted")

	// 阶段控制
	ErrNoSelection         = errors.New("select at least one permutation")
	ErrInvalidTransition   = errors.New("invalid stage transition")
	ErrNoActiveSelection   = errors.New("no batch in progress")
	ErrPermutationNotFound = errors.New("permutation not found")
	ErrSubmissionInFlight  = errors.New("a submission for this batch is already in flight")
)

// ValidationError 是字段级别的校验失败，调用方据此高亮具体的输入。
type ValidationError struct {
	PermutationID string `json:"permutationId,omitempty"`
	Field         string `json:"field"`
	Reason        string `json:"reason"`
}

func (e ValidationError) Error() string {
	if e.PermutationID != "" {
		return fmt.Sprintf("%s (%s): %s", e.Field, e.PermutationID, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors 收集一次赋值或一次推进中的所有字段错误
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (errs *ValidationErrors) add(permutationID, field, reason string) {
	*errs = append(*errs, ValidationError{PermutationID: permutationID, Field: field, Reason: reason})
}

// SubmissionErrorKind 区分可重试和被服务端拒绝两类提交失败
type SubmissionErrorKind string

const (
	SubmissionTransient SubmissionErrorKind = "transient"
	SubmissionRejected  SubmissionErrorKind = "rejected"
)

// SubmissionError 是 Offer 服务批量创建失败的结构化结果。
type SubmissionError struct {
	Kind        SubmissionErrorKind `json:"kind"`
	Code        string              `json:"code"`
	Message     string              `json:"message"`
	FieldErrors []ValidationError   `json:"fieldErrors,omitempty"`
	Err         error               `json:"-"`
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submission %s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("submission %s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Retryable 表示用同一个幂等 token 重试是安全且有意义的
func (e *SubmissionError) Retryable() bool { return e.Kind == SubmissionTransient }

// NewTransientError 包装网络、超时、5xx 之类的错误
func NewTransientError(code, message string, err error) *SubmissionError {
	return &SubmissionError{Kind: SubmissionTransient, Code: code, Message: message, Err: err}
}

// NewRejectedError 表示服务端拒绝了整批请求
func NewRejectedError(code, message string, fieldErrors []ValidationError) *SubmissionError {
	return &SubmissionError{Kind: SubmissionRejected, Code: code, Message: message, FieldErrors: fieldErrors}
}
