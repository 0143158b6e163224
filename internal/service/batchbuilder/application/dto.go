// internal/service/batchbuilder/application/dto.go
package application

import (
	"flashpromo/internal/service/batchbuilder/domain"
	"flashpromo/internal/service/batchbuilder/domain/port"
)

// IntakeRequest 是 Intake 阶段提交的表单
type IntakeRequest struct {
	OfferTitle string              `json:"offerTitle" validate:"required,max=120"`
	Product    string              `json:"product" validate:"required,max=240"`
	FolderID   string              `json:"folderId" validate:"omitempty,max=64"`
	MerchantID string              `json:"-"`
	Choices    map[string][]string `json:"choices" validate:"required,min=1,dive,keys,required,endkeys,dive,required"`
}

// SelectAllRequest 全选 / 全不选
type SelectAllRequest struct {
	Selected *bool `json:"selected" validate:"required"`
}

// View 是某个会话当前构建状态的只读视图，没有进行中的构建时 Stage 为 intake 且列表为空
type View struct {
	SessionID     string                   `json:"sessionId"`
	Stage         domain.Stage             `json:"stage"`
	Permutations  []domain.PermutationCard `json:"permutations"`
	Choices       map[string][]string      `json:"choices,omitempty"`
	FormData      domain.FormData          `json:"formData"`
	SelectedCount int                      `json:"selectedCount"`
	BatchToken    string                   `json:"batchToken,omitempty"`
	Drafts        []domain.OfferDraft      `json:"drafts,omitempty"`
	LastError     *domain.SubmissionError  `json:"lastError,omitempty"`
	CanRetry      bool                     `json:"canRetry"`
}

// SubmitResult 是一次提交的结果
type SubmitResult struct {
	Stage      domain.Stage            `json:"stage"`
	BatchToken string                  `json:"batchToken"`
	CreatedIDs []string                `json:"createdIds,omitempty"`
	Replayed   bool                    `json:"replayed,omitempty"`
	Error      *domain.SubmissionError `json:"error,omitempty"`
}

// CatalogResponse 暴露维度目录，供前端渲染 Intake 表单
type CatalogResponse struct {
	Catalog *domain.Catalog `json:"catalog"`
}

// FoldersResponse 是活动文件夹列表
type FoldersResponse struct {
	Folders []port.Folder `json:"folders"`
}

func newView(sessionID string, sel *domain.BatchBuildSelection) *View {
	if sel == nil {
		return &View{
			SessionID:    sessionID,
			Stage:        domain.StageIntake,
			Permutations: []domain.PermutationCard{},
		}
	}
	v := &View{
		SessionID:     sessionID,
		Stage:         sel.Stage,
		Permutations:  sel.Permutations,
		Choices:       sel.Choices,
		FormData:      sel.FormData,
		SelectedCount: len(sel.Selected()),
		BatchToken:    sel.BatchToken,
		LastError:     sel.LastError,
		CanRetry:      sel.Stage == domain.StageFailed && sel.LastError != nil && sel.LastError.Retryable(),
	}
	if sel.Stage == domain.StageReview || sel.Stage == domain.StageSubmitting || sel.Stage == domain.StageFailed {
		v.Drafts = sel.Drafts
	}
	if v.Permutations == nil {
		v.Permutations = []domain.PermutationCard{}
	}
	return v
}
