package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStage(t *testing.T) {
	tests := []struct {
		from   Stage
		action Action
		want   Stage
		ok     bool
	}{
		{StageIntake, ActionAdvance, StageFinancialTerms, true},
		{StageIntake, ActionBack, StageIntake, false},
		{StageIntake, ActionSubmit, StageIntake, false},
		{StageFinancialTerms, ActionAdvance, StageReview, true},
		{StageFinancialTerms, ActionBack, StageIntake, true},
		{StageReview, ActionSubmit, StageSubmitting, true},
		{StageReview, ActionBack, StageFinancialTerms, true},
		{StageReview, ActionAdvance, StageReview, false},
		{StageSubmitting, ActionSucceed, StageCompleted, true},
		{StageSubmitting, ActionFail, StageFailed, true},
		{StageSubmitting, ActionBack, StageSubmitting, false},
		{StageSubmitting, ActionSubmit, StageSubmitting, false},
		{StageFailed, ActionSubmit, StageSubmitting, true},
		{StageFailed, ActionBack, StageReview, true},
		{StageCompleted, ActionBack, StageCompleted, false},
		{StageCompleted, ActionSubmit, StageCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, err := NextStage(tt.from, tt.action)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStage_Valid(t *testing.T) {
	assert.True(t, StageReview.Valid())
	assert.False(t, Stage("shipping").Valid())
	assert.True(t, StageCompleted.Terminal())
	assert.False(t, StageFailed.Terminal())
}
