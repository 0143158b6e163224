// internal/service/batchbuilder/domain/port/guard.go
package port

import "context"

// SubmissionGuard 保证同一个 token 同时只有一个提交在进行。
// Acquire 在已被占用时返回 domain.ErrSubmissionInFlight。
type SubmissionGuard interface {
	Acquire(ctx context.Context, token string) (release func(), err error)
	InFlight(ctx context.Context, token string) (bool, error)
}
