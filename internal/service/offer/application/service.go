// internal/service/offer/application/service.go
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
	"golang.org/x/sync/singleflight"

	"flashpromo/internal/pkg/logger"
	"flashpromo/internal/service/offer/domain"
)

// OfferService 定义了 Offer 服务提供的所有业务用例
type OfferService struct {
	repo     domain.OfferRepository
	cache    domain.IdempotencyCache
	locker   domain.Locker
	policies domain.PolicyEngine
	tracer   trace.Tracer

	maxBatchSize int
	lockTimeout  time.Duration

	// 同一实例内相同 token 的并发请求只执行一次
	inflight singleflight.Group
	now      func() time.Time
	newID    func() string
}

func NewOfferService(repo domain.OfferRepository, cache domain.IdempotencyCache, locker domain.Locker, policies domain.PolicyEngine, tracer trace.Tracer, maxBatchSize int, lockTimeout time.Duration) *OfferService {
	return &OfferService{
		repo: repo, cache: cache, locker: locker, policies: policies, tracer: tracer,
		maxBatchSize: maxBatchSize, lockTimeout: lockTimeout,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// CreateBatch 是批量创建的核心业务逻辑：整批创建或整批拒绝，同一 token 只创建一次。
func (s *OfferService) CreateBatch(ctx context.Context, req *CreateBatchRequest) (*CreateBatchResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.CreateBatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.token", req.IdempotencyToken),
		attribute.String("merchant.id", req.MerchantID),
		attribute.Int("batch.size", len(req.Drafts)),
	)

	// 1. 结构校验，任何字段错误都拒绝整批
	if err := s.validate(req); err != nil {
		span.RecordError(err)
		batchRequests.WithLabelValues("rejected").Inc()
		return nil, err
	}
	fingerprint := domain.Fingerprint(req.Drafts)

	// 2. 同一实例内的并发重复请求合并为一次执行
	executed := false
	v, err, _ := s.inflight.Do(req.IdempotencyToken, func() (interface{}, error) {
		executed = true
		return s.createOnce(ctx, req, fingerprint)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch create failed")
		batchRequests.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}

	batch := v.(*createOutcome)
	resp := &CreateBatchResponse{
		BatchID:    batch.batch.ID,
		CreatedIDs: batch.batch.OfferIDs,
		Replayed:   batch.replayed || !executed,
	}
	if batch.batch.Fingerprint != fingerprint {
		batchRequests.WithLabelValues("conflict").Inc()
		return nil, domain.ErrIdempotencyConflict
	}
	span.SetAttributes(attribute.Bool("batch.replayed", resp.Replayed))
	if resp.Replayed {
		batchRequests.WithLabelValues("replayed").Inc()
	} else {
		batchRequests.WithLabelValues("created").Inc()
		offersCreated.Add(float64(len(resp.CreatedIDs)))
	}
	return resp, nil
}

func resultLabel(err error) string {
	var rejection *domain.RejectionError
	switch {
	case errors.As(err, &rejection):
		return "rejected"
	case errors.Is(err, domain.ErrRequestInProgress):
		return "in_progress"
	default:
		return "error"
	}
}

type createOutcome struct {
	batch    *domain.Batch
	replayed bool
}

func (s *OfferService) createOnce(ctx context.Context, req *CreateBatchRequest, fingerprint string) (*createOutcome, error) {
	log := logger.Ctx(ctx)

	// 3. 先查缓存，命中说明这个 token 已经完成过
	if cached, err := s.cache.Get(ctx, req.IdempotencyToken); err != nil {
		log.Warn().Err(err).Str("batch_token", req.IdempotencyToken).Msg("Idempotency cache lookup failed, falling back to database")
	} else if cached != nil {
		return &createOutcome{batch: cached, replayed: true}, nil
	}

	// 4. 跨实例串行化同一个 token
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	unlock, err := s.locker.Lock(lockCtx, "batch-"+req.IdempotencyToken)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrRequestInProgress
		}
		return nil, fmt.Errorf("failed to lock batch token: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Warn().Err(err).Str("batch_token", req.IdempotencyToken).Msg("Failed to release batch lock")
		}
	}()

	// 5. 拿到锁之后以数据库为准再查一次
	existing, err := s.repo.FindBatchByToken(ctx, req.IdempotencyToken)
	switch {
	case err == nil:
		s.remember(ctx, existing)
		return &createOutcome{batch: existing, replayed: true}, nil
	case !errors.Is(err, domain.ErrBatchNotFound):
		return nil, err
	}

	// 6. 商户规则
	var violations []domain.FieldError
	for i := range req.Drafts {
		errs, err := s.policies.Evaluate(ctx, &req.Drafts[i])
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate policies: %w", err)
		}
		violations = append(violations, errs...)
	}
	if len(violations) > 0 {
		return nil, domain.NewRejection("policy_violation", "one or more drafts violate merchant policy", violations)
	}

	// 7. 整批写入，一个事务
	now := s.now().UTC()
	batch := &domain.Batch{
		ID:          s.newID(),
		Token:       req.IdempotencyToken,
		MerchantID:  req.MerchantID,
		Fingerprint: fingerprint,
		CreatedAt:   now,
	}
	offers := make([]*domain.Offer, len(req.Drafts))
	for i, d := range req.Drafts {
		offers[i] = domain.NewOffer(s.newID(), batch.ID, req.MerchantID, i, d, now)
		batch.OfferIDs = append(batch.OfferIDs, offers[i].ID)
	}

	if err := s.repo.CreateBatch(ctx, batch, offers); err != nil {
		if errors.Is(err, domain.ErrDuplicateToken) {
			// 锁失效期间被其他实例抢先写入
			existing, findErr := s.repo.FindBatchByToken(ctx, req.IdempotencyToken)
			if findErr != nil {
				return nil, findErr
			}
			return &createOutcome{batch: existing, replayed: true}, nil
		}
		return nil, err
	}
	s.remember(ctx, batch)

	log.Info().
		Str("batch_id", batch.ID).
		Str("batch_token", batch.Token).
		Str("merchant_id", batch.MerchantID).
		Int("offers", len(offers)).
		Msg("Offer batch created")
	return &createOutcome{batch: batch}, nil
}

func (s *OfferService) remember(ctx context.Context, batch *domain.Batch) {
	if err := s.cache.Put(ctx, batch); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("batch_token", batch.Token).Msg("Failed to cache batch result")
	}
}

func (s *OfferService) validate(req *CreateBatchRequest) error {
	if req.IdempotencyToken == "" {
		return domain.NewRejection("missing_token", "idempotencyToken is required", []domain.FieldError{{Field: "idempotencyToken", Reason: "required"}})
	}
	if len(req.Drafts) == 0 {
		return domain.NewRejection("empty_batch", "a batch needs at least one draft", []domain.FieldError{{Field: "drafts", Reason: "required"}})
	}
	if s.maxBatchSize > 0 && len(req.Drafts) > s.maxBatchSize {
		return domain.NewRejection("batch_too_large", fmt.Sprintf("a batch may contain at most %d drafts", s.maxBatchSize), []domain.FieldError{{Field: "drafts", Reason: "too many drafts"}})
	}

	var errs []domain.FieldError
	seen := make(map[string]bool, len(req.Drafts))
	for i := range req.Drafts {
		d := &req.Drafts[i]
		errs = append(errs, d.Validate()...)
		if d.PermutationID != "" {
			if seen[d.PermutationID] {
				errs = append(errs, domain.FieldError{PermutationID: d.PermutationID, Field: "permutationId", Reason: "duplicate in batch"})
			}
			seen[d.PermutationID] = true
		}
	}
	if len(errs) > 0 {
		return domain.NewRejection("validation_failed", "one or more drafts are invalid", errs)
	}
	return nil
}

// ListFolders 返回商户的活动文件夹
func (s *OfferService) ListFolders(ctx context.Context, merchantID string) ([]FolderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListFolders")
	defer span.End()
	span.SetAttributes(attribute.String("merchant.id", merchantID))

	folders, err := s.repo.ListFolders(ctx, merchantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := make([]FolderResponse, 0, len(folders))
	for _, f := range folders {
		out = append(out, FolderResponse{ID: f.ID, Name: f.Name})
	}
	return out, nil
}
