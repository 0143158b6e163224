// internal/service/batchbuilder/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flashpromo/internal/pkg/logger"
	"flashpromo/internal/service/batchbuilder/domain"
	"flashpromo/internal/service/batchbuilder/domain/port"
)

// BuilderService 编排批量构建的各个阶段：加载工作存储、调用领域对象、整体写回。
type BuilderService struct {
	catalog   *domain.Catalog
	store     domain.SelectionStore
	guard     port.SubmissionGuard
	submitter *BatchSubmitter
	folders   port.FolderService
	notifier  port.OutcomeNotifier
	tracer    trace.Tracer

	now      func() time.Time
	newToken func() string
}

func NewBuilderService(catalog *domain.Catalog, store domain.SelectionStore, guard port.SubmissionGuard, submitter *BatchSubmitter, folders port.FolderService, notifier port.OutcomeNotifier, tracer trace.Tracer) *BuilderService {
	return &BuilderService{
		catalog: catalog, store: store, guard: guard,
		submitter: submitter, folders: folders, notifier: notifier,
		tracer:   tracer,
		now:      time.Now,
		newToken: func() string { return uuid.NewString() },
	}
}

// Catalog 返回启动时加载的维度目录
func (s *BuilderService) Catalog() *domain.Catalog {
	return s.catalog
}

// View 返回当前会话的构建状态，没有进行中的构建时返回 Intake 的空视图
func (s *BuilderService) View(ctx context.Context, sessionID string) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "builder.View")
	defer span.End()

	sel, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return newView(sessionID, sel), nil
}

// Generate 根据 Intake 表单生成 permutation，并开始（或在 Intake 阶段重建）一次构建
func (s *BuilderService) Generate(ctx context.Context, sessionID string, req *IntakeRequest) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "builder.Generate")
	defer span.End()

	cards, err := domain.Generate(s.catalog, req.Choices)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("permutations.count", len(cards)))
	permutationsGenerated.Observe(float64(len(cards)))

	prev, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	form := domain.FormData{
		OfferTitle: req.OfferTitle,
		Product:    req.Product,
		FolderID:   req.FolderID,
		MerchantID: req.MerchantID,
	}
	sel, err := domain.Regenerate(prev, cards, req.Choices, form)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.save(ctx, sessionID, sel); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Int("permutations", len(cards)).
		Bool("regenerated", prev != nil).
		Msg("Permutations generated")
	return newView(sessionID, sel), nil
}

// Toggle 切换单个 permutation 的勾选状态
func (s *BuilderService) Toggle(ctx context.Context, sessionID, permutationID string) (*View, error) {
	return s.mutate(ctx, sessionID, "Toggle", func(sel *domain.BatchBuildSelection) error {
		return sel.Toggle(permutationID)
	})
}

// SelectAll 全选或全不选
func (s *BuilderService) SelectAll(ctx context.Context, sessionID string, selected bool) (*View, error) {
	return s.mutate(ctx, sessionID, "SelectAll", func(sel *domain.BatchBuildSelection) error {
		return sel.SelectAll(selected)
	})
}

// SetTerms 为单个 permutation 填写条款
func (s *BuilderService) SetTerms(ctx context.Context, sessionID, permutationID string, fields domain.TermFields) (*View, error) {
	return s.mutate(ctx, sessionID, "SetTerms", func(sel *domain.BatchBuildSelection) error {
		return sel.SetTerms(permutationID, fields)
	})
}

// ApplyTerms 为某一机制下所有已勾选的 permutation 填写同一组条款
func (s *BuilderService) ApplyTerms(ctx context.Context, sessionID, mechanic string, fields domain.TermFields) (*View, error) {
	offerType, err := ParseMechanic(mechanic)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, sessionID, "ApplyTerms", func(sel *domain.BatchBuildSelection) error {
		return sel.ApplyTerms(offerType, fields)
	})
}

// ParseMechanic 解析路径里的机制名，"legacy" 表示没有机制的旧版优惠
func ParseMechanic(mechanic string) (domain.OfferType, error) {
	if mechanic == "legacy" {
		return domain.OfferTypeUnset, nil
	}
	if t, ok := domain.ParseOfferType(mechanic); ok {
		return t, nil
	}
	return domain.OfferTypeUnset, domain.ValidationErrors{
		{Field: domain.FieldOfferType, Reason: "unsupported offer type"},
	}
}

// Advance 推进一个阶段：Intake -> FinancialTerms -> Review。
// 进入 Review 之后只能通过 Submit 继续前进。
func (s *BuilderService) Advance(ctx context.Context, sessionID string) (*View, error) {
	return s.mutate(ctx, sessionID, "Advance", func(sel *domain.BatchBuildSelection) error {
		switch sel.Stage {
		case domain.StageIntake:
			return sel.EnterFinancialTerms()
		case domain.StageFinancialTerms:
			return sel.EnterReview(s.newToken)
		default:
			_, err := domain.NextStage(sel.Stage, domain.ActionAdvance)
			return err
		}
	})
}

// Back 回退一个阶段，不丢弃任何表单数据
func (s *BuilderService) Back(ctx context.Context, sessionID string) (*View, error) {
	return s.mutate(ctx, sessionID, "Back", func(sel *domain.BatchBuildSelection) error {
		return sel.Back()
	})
}

// Abandon 显式放弃当前构建并清空工作存储
func (s *BuilderService) Abandon(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "builder.Abandon")
	defer span.End()

	sel, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if sel != nil && sel.Stage == domain.StageSubmitting {
		return domain.ErrSubmissionInFlight
	}
	if err := s.store.Clear(ctx, sessionID); err != nil {
		span.RecordError(err)
		return err
	}
	logger.Ctx(ctx).Info().Str("session_id", sessionID).Msg("Batch build abandoned")
	return nil
}

// Folders 查询商户的活动文件夹
func (s *BuilderService) Folders(ctx context.Context, merchantID string) ([]port.Folder, error) {
	ctx, span := s.tracer.Start(ctx, "builder.Folders")
	defer span.End()

	folders, err := s.folders.ListFolders(ctx, merchantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return folders, nil
}

// Submit 把 Review 阶段组装好的整批草稿提交给 Offer 服务。
//
// 同一个 token 同时只允许一个提交；成功后清空工作存储，失败则保留选择并记录 lastError。
// 调用方取消请求时结果按 transient 失败写回，工作存储不会被清空。
func (s *BuilderService) Submit(ctx context.Context, sessionID string) (*SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "builder.Submit")
	defer span.End()
	log := logger.Ctx(ctx)

	// 1. 先检查阶段，避免为非法请求占用 guard
	sel, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if sel == nil {
		return nil, domain.ErrNoActiveSelection
	}
	if sel.Stage == domain.StageSubmitting {
		return nil, domain.ErrSubmissionInFlight
	}
	if _, err := domain.NextStage(sel.Stage, domain.ActionSubmit); err != nil {
		return nil, err
	}
	token := sel.BatchToken
	span.SetAttributes(attribute.String("batch.token", token))

	// 2. 占用 token，双击或重复请求在这里被拒绝
	release, err := s.guard.Acquire(ctx, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer release()

	// 3. 拿到 guard 之后重新加载，确认没有被其他请求改过
	sel, err = s.store.Load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if sel == nil {
		return nil, domain.ErrNoActiveSelection
	}
	if sel.BatchToken != token {
		return nil, fmt.Errorf("%w: batch changed while waiting to submit", domain.ErrInvalidTransition)
	}
	from := sel.Stage
	token, drafts, err := sel.BeginSubmit()
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, sessionID, sel); err != nil {
		span.RecordError(err)
		return nil, err
	}
	stageTransitions.WithLabelValues(string(from), string(sel.Stage)).Inc()

	// 4. 唯一的一次外部调用
	result, subErr := s.submitter.Submit(ctx, &port.BatchCreateRequest{
		IdempotencyToken: token,
		MerchantID:       sel.FormData.MerchantID,
		Drafts:           drafts,
	})

	// 5. 结果必须落盘，即使调用方已经取消
	persistCtx := context.WithoutCancel(ctx)
	outcome := port.Outcome{
		SessionID:  sessionID,
		MerchantID: sel.FormData.MerchantID,
		BatchToken: token,
		At:         s.now(),
	}

	if subErr != nil {
		span.RecordError(subErr)
		span.SetStatus(codes.Error, string(subErr.Kind))
		submissions.WithLabelValues(string(subErr.Kind)).Inc()

		if err := sel.MarkFailed(subErr); err != nil {
			return nil, err
		}
		if err := s.save(persistCtx, sessionID, sel); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to persist failed submission, it will be recovered as interrupted")
		}
		stageTransitions.WithLabelValues(string(domain.StageSubmitting), string(sel.Stage)).Inc()

		log.Warn().
			Str("session_id", sessionID).
			Str("batch_token", token).
			Str("kind", string(subErr.Kind)).
			Str("code", subErr.Code).
			Msg("Batch submission failed")

		outcome.Error = subErr
		s.notify(persistCtx, outcome)
		return &SubmitResult{Stage: sel.Stage, BatchToken: token, Error: subErr}, subErr
	}

	submissions.WithLabelValues("succeeded").Inc()
	if err := sel.MarkCompleted(); err != nil {
		return nil, err
	}
	if err := s.store.Clear(persistCtx, sessionID); err != nil {
		// 重试会拿到服务端重放的结果，不会重复创建
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to clear working selection after a successful submission")
	}
	stageTransitions.WithLabelValues(string(domain.StageSubmitting), string(sel.Stage)).Inc()

	log.Info().
		Str("session_id", sessionID).
		Str("batch_token", token).
		Int("created", len(result.CreatedIDs)).
		Bool("replayed", result.Replayed).
		Msg("Batch submitted successfully")
	span.AddEvent("Batch created")

	outcome.Succeeded = true
	outcome.CreatedIDs = result.CreatedIDs
	s.notify(persistCtx, outcome)

	return &SubmitResult{
		Stage:      sel.Stage,
		BatchToken: token,
		CreatedIDs: result.CreatedIDs,
		Replayed:   result.Replayed,
	}, nil
}

func (s *BuilderService) notify(ctx context.Context, outcome port.Outcome) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, outcome); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("batch_token", outcome.BatchToken).Msg("Failed to publish submission outcome")
	}
}

// mutate 是 load -> 修改 -> 整体写回 的通用流程
func (s *BuilderService) mutate(ctx context.Context, sessionID, op string, fn func(*domain.BatchBuildSelection) error) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "builder."+op)
	defer span.End()

	sel, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if sel == nil {
		return nil, domain.ErrNoActiveSelection
	}

	from := sel.Stage
	if err := fn(sel); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.save(ctx, sessionID, sel); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if sel.Stage != from {
		stageTransitions.WithLabelValues(string(from), string(sel.Stage)).Inc()
		logger.Ctx(ctx).Info().
			Str("session_id", sessionID).
			Str("from", string(from)).
			Str("to", string(sel.Stage)).
			Msg("Stage changed")
	}
	return newView(sessionID, sel), nil
}

// load 读取工作存储，并把没有持有者的 Submitting 状态归一为 Failed
func (s *BuilderService) load(ctx context.Context, sessionID string) (*domain.BatchBuildSelection, error) {
	sel, err := s.store.Load(ctx, sessionID)
	if err != nil || sel == nil {
		return nil, err
	}
	if sel.Stage != domain.StageSubmitting {
		return sel, nil
	}

	inFlight, err := s.guard.InFlight(ctx, sel.BatchToken)
	if err != nil {
		return nil, err
	}
	if inFlight || !sel.Interrupt() {
		return sel, nil
	}
	interruptedSubmissions.Inc()
	logger.Ctx(ctx).Warn().
		Str("session_id", sessionID).
		Str("batch_token", sel.BatchToken).
		Msg("Found an interrupted submission, marking it as failed")
	if err := s.save(ctx, sessionID, sel); err != nil {
		return nil, err
	}
	return sel, nil
}

func (s *BuilderService) save(ctx context.Context, sessionID string, sel *domain.BatchBuildSelection) error {
	sel.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sessionID, sel); err != nil {
		return fmt.Errorf("failed to save working selection: %w", err)
	}
	return nil
}

// IsClientError 判断错误是否由调用方的输入或操作顺序引起
func IsClientError(err error) bool {
	var verrs domain.ValidationErrors
	return errors.As(err, &verrs) ||
		errors.Is(err, domain.ErrTooManyPermutations) ||
		errors.Is(err, domain.ErrUnknownDimension) ||
		errors.Is(err, domain.ErrUnknownValue) ||
		errors.Is(err, domain.ErrNoSelection) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrNoActiveSelection) ||
		errors.Is(err, domain.ErrPermutationNotFound) ||
		errors.Is(err, domain.ErrSubmissionInFlight)
}
