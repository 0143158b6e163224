// internal/service/batchbuilder/domain/stage.go
package domain

import "fmt"

// Stage 是批量构建流程所处的阶段。
type Stage string

const (
	StageIntake         Stage = "intake"
	StageFinancialTerms Stage = "financial_terms"
	StageReview         Stage = "review"
	StageSubmitting     Stage = "submitting"
	StageCompleted      Stage = "completed"
	StageFailed         Stage = "failed"
)

// Action 是触发阶段迁移的动作，前端只能发起 advance / back / submit
type Action string

const (
	ActionAdvance Action = "advance"
	ActionBack    Action = "back"
	ActionSubmit  Action = "submit"
	ActionSucceed Action = "succeed"
	ActionFail    Action = "fail"
)

type transitionKey struct {
	from   Stage
	action Action
}

// transitions 是完整的状态迁移表，不在表里的组合都是非法迁移
var transitions = map[transitionKey]Stage{
	{StageIntake, ActionAdvance}:         StageFinancialTerms,
	{StageFinancialTerms, ActionAdvance}: StageReview,
	{StageFinancialTerms, ActionBack}:    StageIntake,
	{StageReview, ActionSubmit}:          StageSubmitting,
	{StageReview, ActionBack}:            StageFinancialTerms,
	{StageSubmitting, ActionSucceed}:     StageCompleted,
	{StageSubmitting, ActionFail}:        StageFailed,
	{StageFailed, ActionSubmit}:          StageSubmitting,
	{StageFailed, ActionBack}:            StageReview,
}

// NextStage 查表得到迁移后的阶段
func NextStage(from Stage, action Action) (Stage, error) {
	to, ok := transitions[transitionKey{from, action}]
	if !ok {
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Valid 判断是否为已知阶段
func (s Stage) Valid() bool {
	switch s {
	case StageIntake, StageFinancialTerms, StageReview, StageSubmitting, StageCompleted, StageFailed:
		return true
	}
	return false
}

// Terminal 表示本轮构建已经结束
func (s Stage) Terminal() bool {
	return s == StageCompleted
}
