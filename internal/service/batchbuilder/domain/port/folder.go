// internal/service/batchbuilder/domain/port/folder.go
package port

import "context"

// Folder 是商户用来整理优惠的活动文件夹
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type FolderService interface {
	ListFolders(ctx context.Context, merchantID string) ([]Folder, error)
}
