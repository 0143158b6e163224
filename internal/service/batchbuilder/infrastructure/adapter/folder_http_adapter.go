// internal/service/batchbuilder/infrastructure/adapter/folder_http_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"flashpromo/internal/pkg/httpclient"
	"flashpromo/internal/service/batchbuilder/domain/port"
)

const foldersPath = "/folders"

// FolderHTTPAdapter 实现了 port.FolderService 接口。
type FolderHTTPAdapter struct {
	client      *httpclient.Client
	serviceName string
}

func NewFolderHTTPAdapter(client *httpclient.Client, serviceName string) *FolderHTTPAdapter {
	return &FolderHTTPAdapter{client: client, serviceName: serviceName}
}

func (a *FolderHTTPAdapter) ListFolders(ctx context.Context, merchantID string) ([]port.Folder, error) {
	params := url.Values{}
	params.Set("merchantId", merchantID)

	resp, err := a.client.CallService(ctx, a.serviceName, http.MethodGet, foldersPath, params, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "list folders request failed")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("folder service responded %d", resp.StatusCode)
	}

	folders := []port.Folder{}
	if err := json.Unmarshal(resp.Body, &folders); err != nil {
		return nil, errors.Wrap(err, "failed to decode folders")
	}
	return folders, nil
}
