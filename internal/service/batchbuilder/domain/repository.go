// internal/service/batchbuilder/domain/repository.go
package domain

import "context"

// SelectionStore 是会话级的工作存储。
//   - Load 在没有记录或记录无法解析时返回 (nil, nil)
//   - Save 整体覆盖，不做合并
//   - Clear 删除该会话的记录
type SelectionStore interface {
	Load(ctx context.Context, sessionID string) (*BatchBuildSelection, error)
	Save(ctx context.Context, sessionID string, selection *BatchBuildSelection) error
	Clear(ctx context.Context, sessionID string) error
}
