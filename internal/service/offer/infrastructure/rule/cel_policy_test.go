package rule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashpromo/internal/service/offer/domain"
)

func f64(v float64) *float64 { return &v }

func TestCELPolicyEngine_Evaluate(t *testing.T) {
	engine, err := NewCELPolicyEngine([]Policy{
		{Name: "max-percentage", Field: "percentageOff", Expr: "!has(offer.percentageOff) || offer.percentageOff <= 90.0", Reason: "exceeds merchant maximum of 90"},
		{Name: "max-duration", Field: "durationHours", Expr: "offer.durationHours <= 720"},
		{Name: "threshold", Field: "thresholdDiscount", Expr: "!has(offer.thresholdDiscount) || offer.thresholdDiscount < offer.spendThreshold", Reason: "must be less than spendThreshold"},
	})
	require.NoError(t, err)
	ctx := context.Background()

	ok := &domain.Draft{PermutationID: "p1", OfferType: domain.OfferTypePercentage, PercentageOff: f64(50), DurationHours: 72}
	violations, err := engine.Evaluate(ctx, ok)
	require.NoError(t, err)
	assert.Empty(t, violations)

	tooDeep := &domain.Draft{PermutationID: "p2", OfferType: domain.OfferTypePercentage, PercentageOff: f64(95), DurationHours: 1000}
	violations, err = engine.Evaluate(ctx, tooDeep)
	require.NoError(t, err)
	assert.Equal(t, []domain.FieldError{
		{PermutationID: "p2", Field: "percentageOff", Reason: "exceeds merchant maximum of 90"},
		{PermutationID: "p2", Field: "durationHours", Reason: "violates policy max-duration"},
	}, violations)

	threshold := &domain.Draft{PermutationID: "p3", OfferType: domain.OfferTypeSpendThreshold, SpendThreshold: f64(20), ThresholdDiscount: f64(25)}
	violations, err = engine.Evaluate(ctx, threshold)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "thresholdDiscount", violations[0].Field)
}

func TestCELPolicyEngine_MatchesOfferType(t *testing.T) {
	engine, err := NewCELPolicyEngine([]Policy{
		{Name: "no-bogo", Field: "offerType", Expr: `offer.offerType != "bogo"`},
	})
	require.NoError(t, err)

	violations, err := engine.Evaluate(context.Background(), &domain.Draft{PermutationID: "p1", OfferType: domain.OfferTypeBogo})
	require.NoError(t, err)
	assert.Len(t, violations, 1)
}

func TestNewCELPolicyEngine_RejectsBadPolicies(t *testing.T) {
	_, err := NewCELPolicyEngine([]Policy{{Name: "syntax", Expr: "offer.percentageOff <="}})
	assert.Error(t, err)

	_, err = NewCELPolicyEngine([]Policy{{Name: "not-bool", Expr: `"hello"`}})
	assert.Error(t, err)
}

func TestCELPolicyEngine_NonBoolResultIsError(t *testing.T) {
	engine, err := NewCELPolicyEngine([]Policy{{Name: "dyn", Field: "title", Expr: "offer.title"}})
	require.NoError(t, err)
	_, err = engine.Evaluate(context.Background(), &domain.Draft{PermutationID: "p1", Title: "hi"})
	assert.Error(t, err)
}
