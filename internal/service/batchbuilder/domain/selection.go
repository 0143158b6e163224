// internal/service/batchbuilder/domain/selection.go
package domain

import (
	"fmt"
	"strings"
	"time"
)

// FormData 是整批优惠共享的表单数据，以及 Stage 1 里按 permutation 填写的条款。
type FormData struct {
	OfferTitle string                `json:"offerTitle"`
	Product    string                `json:"product"`
	FolderID   string                `json:"folderId,omitempty"`
	MerchantID string                `json:"merchantId,omitempty"`
	Terms      map[string]TermFields `json:"terms,omitempty"`
}

// BatchBuildSelection 是工作存储里保存的完整文档，一个会话一份。
// 所有修改都在内存里完成后整体写回。
type BatchBuildSelection struct {
	Permutations []PermutationCard  `json:"permutations"`
	Choices      map[string][]string `json:"choices,omitempty"`
	FormData     FormData            `json:"formData"`

	Stage            Stage            `json:"stage"`
	BatchToken       string           `json:"batchToken,omitempty"`
	DraftFingerprint string           `json:"draftFingerprint,omitempty"`
	Drafts           []OfferDraft     `json:"drafts,omitempty"`
	LastError        *SubmissionError `json:"lastError,omitempty"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Regenerate 用新生成的 permutation 开始或重建一份选择。
// 之前存在且再次生成出来的 id 保留原来的勾选状态和条款，表单里的标题等字段沿用 form。
// 上一次的 batch token 和草稿指纹也会保留。
func Regenerate(prev *BatchBuildSelection, cards []PermutationCard, choices map[string][]string, form FormData) (*BatchBuildSelection, error) {
	if prev != nil && prev.Stage != StageIntake {
		return nil, fmt.Errorf("%w: cannot regenerate permutations during %s", ErrInvalidTransition, prev.Stage)
	}

	form.Terms = make(map[string]TermFields)
	if prev != nil {
		previous := make(map[string]bool, len(prev.Permutations))
		for _, c := range prev.Permutations {
			previous[c.ID] = c.Selected
		}
		for i := range cards {
			if selected, ok := previous[cards[i].ID]; ok {
				cards[i].Selected = selected
			}
			if terms, ok := prev.FormData.Terms[cards[i].ID]; ok {
				form.Terms[cards[i].ID] = terms
			}
		}
	}

	next := &BatchBuildSelection{
		Permutations: cards,
		Choices:      choices,
		FormData:     form,
		Stage:        StageIntake,
	}
	// token 跟着草稿走：重新生成出相同的草稿时 EnterReview 会沿用它，避免重复创建
	if prev != nil {
		next.BatchToken = prev.BatchToken
		next.DraftFingerprint = prev.DraftFingerprint
		next.LastError = prev.LastError
	}
	return next, nil
}

// Selected 按生成顺序返回已勾选的 permutation
func (s *BatchBuildSelection) Selected() []PermutationCard {
	out := make([]PermutationCard, 0, len(s.Permutations))
	for _, c := range s.Permutations {
		if c.Selected {
			out = append(out, c)
		}
	}
	return out
}

func (s *BatchBuildSelection) card(id string) (*PermutationCard, error) {
	for i := range s.Permutations {
		if s.Permutations[i].ID == id {
			return &s.Permutations[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPermutationNotFound, id)
}

func (s *BatchBuildSelection) requireStage(op string, allowed ...Stage) error {
	for _, st := range allowed {
		if s.Stage == st {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s during %s", ErrInvalidTransition, op, s.Stage)
}

// Toggle 切换一个 permutation 的勾选状态。
// 在 Stage 1 中不允许取消最后一个勾选，否则阶段的进入条件就不成立了。
func (s *BatchBuildSelection) Toggle(id string) error {
	if err := s.requireStage("toggle", StageIntake, StageFinancialTerms); err != nil {
		return err
	}
	c, err := s.card(id)
	if err != nil {
		return err
	}
	if c.Selected && s.Stage == StageFinancialTerms && len(s.Selected()) == 1 {
		return ErrNoSelection
	}
	c.Selected = !c.Selected
	return nil
}

// SelectAll 全选或全不选，只在 Intake 阶段可用
func (s *BatchBuildSelection) SelectAll(selected bool) error {
	if err := s.requireStage("select all", StageIntake); err != nil {
		return err
	}
	for i := range s.Permutations {
		s.Permutations[i].Selected = selected
	}
	return nil
}

// SetTerms 为单个 permutation 写入条款，只有通过校验才会保存
func (s *BatchBuildSelection) SetTerms(id string, fields TermFields) error {
	if err := s.requireStage("set terms", StageFinancialTerms); err != nil {
		return err
	}
	c, err := s.card(id)
	if err != nil {
		return err
	}
	if _, err := Assign(*c, fields); err != nil {
		return err
	}
	s.setTerms(id, fields)
	return nil
}

// ApplyTerms 把同一组条款应用到所有已勾选的、属于该机制的 permutation。
// 任何一个校验失败则一个都不写入。
func (s *BatchBuildSelection) ApplyTerms(offerType OfferType, fields TermFields) error {
	if err := s.requireStage("apply terms", StageFinancialTerms); err != nil {
		return err
	}

	var targets []string
	var errs ValidationErrors
	for _, c := range s.Selected() {
		if c.OfferType != offerType {
			continue
		}
		targets = append(targets, c.ID)
		if _, err := Assign(c, fields); err != nil {
			if verrs, ok := err.(ValidationErrors); ok {
				errs = append(errs, verrs...)
				continue
			}
			return err
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: no selected %q permutations", ErrPermutationNotFound, offerType)
	}
	if len(errs) > 0 {
		return errs
	}
	for _, id := range targets {
		s.setTerms(id, fields)
	}
	return nil
}

func (s *BatchBuildSelection) setTerms(id string, fields TermFields) {
	if s.FormData.Terms == nil {
		s.FormData.Terms = make(map[string]TermFields)
	}
	s.FormData.Terms[id] = fields
}

// EnterFinancialTerms 是 Intake 的 advance，至少要勾选一个 permutation
func (s *BatchBuildSelection) EnterFinancialTerms() error {
	if err := s.requireStage("enter financial terms", StageIntake); err != nil {
		return err
	}
	if len(s.Selected()) == 0 {
		return ErrNoSelection
	}
	s.Stage, _ = NextStage(s.Stage, ActionAdvance)
	return nil
}

// AssembleDrafts 为每个已勾选的 permutation 生成完整草稿，收集全部字段错误
func (s *BatchBuildSelection) AssembleDrafts() ([]OfferDraft, error) {
	selected := s.Selected()
	if len(selected) == 0 {
		return nil, ErrNoSelection
	}

	var errs ValidationErrors
	title := strings.TrimSpace(s.FormData.OfferTitle)
	product := strings.TrimSpace(s.FormData.Product)
	if title == "" {
		errs.add("", "offerTitle", "required")
	}
	if product == "" {
		errs.add("", "product", "required")
	}

	drafts := make([]OfferDraft, 0, len(selected))
	for _, c := range selected {
		d, err := Assign(c, s.FormData.Terms[c.ID])
		if err != nil {
			if verrs, ok := err.(ValidationErrors); ok {
				errs = append(errs, verrs...)
				continue
			}
			return nil, err
		}
		d.Title = title
		d.Product = product
		d.FolderID = s.FormData.FolderID
		drafts = append(drafts, d)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return drafts, nil
}

// EnterReview 是 Stage 1 的 advance：组装草稿并决定幂等 token。
// 第一次进入 Review 时生成 token；之后再次进入时，草稿没有变化就沿用原 token，否则换新的。
func (s *BatchBuildSelection) EnterReview(mint func() string) error {
	if err := s.requireStage("enter review", StageFinancialTerms); err != nil {
		return err
	}
	drafts, err := s.AssembleDrafts()
	if err != nil {
		return err
	}
	fingerprint, err := Fingerprint(drafts)
	if err != nil {
		return err
	}

	if s.BatchToken == "" || s.DraftFingerprint != fingerprint {
		s.BatchToken = mint()
		s.LastError = nil
	}
	s.DraftFingerprint = fingerprint
	s.Drafts = drafts
	s.Stage, _ = NextStage(s.Stage, ActionAdvance)
	return nil
}

// Back 回退一个阶段，表单数据、勾选状态和已组装的草稿都保留
func (s *BatchBuildSelection) Back() error {
	next, err := NextStage(s.Stage, ActionBack)
	if err != nil {
		return err
	}
	s.Stage = next
	return nil
}

// BeginSubmit 进入 Submitting，返回本次提交使用的 token 和草稿
func (s *BatchBuildSelection) BeginSubmit() (string, []OfferDraft, error) {
	next, err := NextStage(s.Stage, ActionSubmit)
	if err != nil {
		return "", nil, err
	}
	if s.BatchToken == "" || len(s.Drafts) == 0 {
		return "", nil, fmt.Errorf("%w: batch has not been reviewed", ErrInvalidTransition)
	}
	s.Stage = next
	return s.BatchToken, s.Drafts, nil
}

// MarkFailed 记录一次失败的提交，选择本身保持不变
func (s *BatchBuildSelection) MarkFailed(failure *SubmissionError) error {
	next, err := NextStage(s.Stage, ActionFail)
	if err != nil {
		return err
	}
	s.Stage = next
	s.LastError = failure
	return nil
}

// MarkCompleted 标记提交成功
func (s *BatchBuildSelection) MarkCompleted() error {
	next, err := NextStage(s.Stage, ActionSucceed)
	if err != nil {
		return err
	}
	s.Stage = next
	s.LastError = nil
	return nil
}

// Interrupt 处理加载时发现的、已经没有请求在处理的 Submitting 状态（进程崩溃或请求被取消）。
// 返回 true 表示文档被修改，需要写回。
func (s *BatchBuildSelection) Interrupt() bool {
	if s.Stage != StageSubmitting {
		return false
	}
	s.Stage = StageFailed
	s.LastError = NewTransientError("interrupted", "the previous submission did not finish, retry to resume", nil)
	return true
}
