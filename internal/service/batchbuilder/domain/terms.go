// internal/service/batchbuilder/domain/terms.go
package domain

import (
	"math"
	"strings"
)

// Stage 1 的字段名，同时也是 ValidationError.Field 和 Offer 服务的 JSON 字段名
const (
	FieldPercentageOff     = "percentageOff"
	FieldDollarOff         = "dollarOff"
	FieldBuyQuantity       = "buyQuantity"
	FieldGetQuantity       = "getQuantity"
	FieldBogoPercentageOff = "bogoPercentageOff"
	FieldSpendThreshold    = "spendThreshold"
	FieldThresholdDiscount = "thresholdDiscount"
	FieldDiscount          = "discount"
	FieldDurationHours     = "durationHours"
	FieldOfferType         = "offerType"
)

func isPresetField(field string) bool {
	switch field {
	case FieldPercentageOff, FieldDollarOff, FieldBuyQuantity, FieldGetQuantity,
		FieldBogoPercentageOff, FieldSpendThreshold, FieldThresholdDiscount, FieldDurationHours:
		return true
	}
	return false
}

// TermFields 是商户在 Stage 1 填写的原始输入，nil 表示未填。
type TermFields struct {
	PercentageOff     *float64 `json:"percentageOff,omitempty"`
	DollarOff         *float64 `json:"dollarOff,omitempty"`
	BuyQuantity       *float64 `json:"buyQuantity,omitempty"`
	GetQuantity       *float64 `json:"getQuantity,omitempty"`
	BogoPercentageOff *float64 `json:"bogoPercentageOff,omitempty"`
	SpendThreshold    *float64 `json:"spendThreshold,omitempty"`
	ThresholdDiscount *float64 `json:"thresholdDiscount,omitempty"`
	Discount          *string  `json:"discount,omitempty"`
}

// withPresets 只填充未填写的字段
func (f TermFields) withPresets(presets map[string]float64) TermFields {
	fill := func(dst **float64, field string) {
		if *dst != nil {
			return
		}
		if v, ok := presets[field]; ok {
			v := v
			*dst = &v
		}
	}
	fill(&f.PercentageOff, FieldPercentageOff)
	fill(&f.DollarOff, FieldDollarOff)
	fill(&f.BuyQuantity, FieldBuyQuantity)
	fill(&f.GetQuantity, FieldGetQuantity)
	fill(&f.BogoPercentageOff, FieldBogoPercentageOff)
	fill(&f.SpendThreshold, FieldSpendThreshold)
	fill(&f.ThresholdDiscount, FieldThresholdDiscount)
	return f
}

// Assign 把一个 permutation 和 Stage 1 的输入解析成完整的优惠条款。
//
// 按 OfferType 分派，每种机制的必填字段是固定的。要么全部字段校验通过，
// 要么返回 ValidationErrors 且不产出任何条款。
func Assign(card PermutationCard, fields TermFields) (OfferDraft, error) {
	merged := fields.withPresets(card.Presets)
	v := termValidator{permutationID: card.ID}

	var terms Terms
	switch card.OfferType {
	case OfferTypePercentage:
		terms = PercentageTerms{
			PercentageOff: v.percentage(FieldPercentageOff, merged.PercentageOff),
		}
	case OfferTypeDollarAmount:
		terms = DollarAmountTerms{
			DollarOff: v.amount(FieldDollarOff, merged.DollarOff),
		}
	case OfferTypeBogo:
		terms = BogoTerms{
			BuyQuantity:       v.quantity(FieldBuyQuantity, merged.BuyQuantity),
			GetQuantity:       v.quantity(FieldGetQuantity, merged.GetQuantity),
			BogoPercentageOff: v.percentage(FieldBogoPercentageOff, merged.BogoPercentageOff),
		}
	case OfferTypeSpendThreshold:
		terms = SpendThresholdTerms{
			SpendThreshold:    v.amount(FieldSpendThreshold, merged.SpendThreshold),
			ThresholdDiscount: v.amount(FieldThresholdDiscount, merged.ThresholdDiscount),
		}
	case OfferTypeUnset:
		terms = LegacyTerms{Discount: v.text(FieldDiscount, merged.Discount)}
	default:
		v.errs.add(card.ID, FieldOfferType, "unsupported offer type")
	}

	if len(v.errs) > 0 {
		return OfferDraft{}, v.errs
	}

	draft := OfferDraft{
		PermutationID: card.ID,
		Label:         card.Label,
		Terms:         terms,
	}
	if hours, ok := card.Presets[FieldDurationHours]; ok && hours > 0 {
		draft.DurationHours = int(hours)
	}
	return draft, nil
}

type termValidator struct {
	permutationID string
	errs          ValidationErrors
}

func (v *termValidator) amount(field string, value *float64) float64 {
	if value == nil {
		v.errs.add(v.permutationID, field, "required")
		return 0
	}
	n := *value
	if math.IsNaN(n) || math.IsInf(n, 0) {
		v.errs.add(v.permutationID, field, "must be finite")
		return 0
	}
	if n < 0 {
		v.errs.add(v.permutationID, field, "must be non-negative")
		return 0
	}
	return n
}

func (v *termValidator) percentage(field string, value *float64) float64 {
	before := len(v.errs)
	n := v.amount(field, value)
	if len(v.errs) == before && n > 100 {
		v.errs.add(v.permutationID, field, "exceeds 100")
		return 0
	}
	return n
}

func (v *termValidator) quantity(field string, value *float64) int {
	before := len(v.errs)
	n := v.amount(field, value)
	if len(v.errs) != before {
		return 0
	}
	if n != math.Trunc(n) {
		v.errs.add(v.permutationID, field, "must be a whole number")
		return 0
	}
	if n < 1 {
		v.errs.add(v.permutationID, field, "must be at least 1")
		return 0
	}
	if n > math.MaxInt32 {
		v.errs.add(v.permutationID, field, "is too large")
		return 0
	}
	return int(n)
}

func (v *termValidator) text(field string, value *string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		v.errs.add(v.permutationID, field, "required")
		return ""
	}
	return strings.TrimSpace(*value)
}
