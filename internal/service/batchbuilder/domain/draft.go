// internal/service/batchbuilder/domain/draft.go
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Terms 是按 OfferType 区分的条款变体，每个变体只携带该机制需要的字段。
type Terms interface {
	OfferType() OfferType
}

type PercentageTerms struct {
	PercentageOff float64
}

type DollarAmountTerms struct {
	DollarOff float64
}

type BogoTerms struct {
	BuyQuantity       int
	GetQuantity       int
	BogoPercentageOff float64
}

type SpendThresholdTerms struct {
	SpendThreshold    float64
	ThresholdDiscount float64
}

// LegacyTerms 是没有 OfferType 的旧版优惠，只有自由文本描述
type LegacyTerms struct {
	Discount string
}

func (PercentageTerms) OfferType() OfferType     { return OfferTypePercentage }
func (DollarAmountTerms) OfferType() OfferType   { return OfferTypeDollarAmount }
func (BogoTerms) OfferType() OfferType           { return OfferTypeBogo }
func (SpendThresholdTerms) OfferType() OfferType { return OfferTypeSpendThreshold }
func (LegacyTerms) OfferType() OfferType         { return OfferTypeUnset }

// OfferDraft 是可以直接提交给 Offer 服务的完整优惠。
type OfferDraft struct {
	PermutationID string
	Label         string
	Title         string
	Product       string
	FolderID      string
	DurationHours int
	Terms         Terms
}

// OfferType 返回条款对应的机制
func (d OfferDraft) OfferType() OfferType {
	if d.Terms == nil {
		return OfferTypeUnset
	}
	return d.Terms.OfferType()
}

// draftJSON 是 Offer 服务约定的扁平线上格式
type draftJSON struct {
	PermutationID     string    `json:"permutationId"`
	OfferType         OfferType `json:"offerType,omitempty"`
	Title             string    `json:"title"`
	Product           string    `json:"product"`
	Label             string    `json:"label"`
	FolderID          string    `json:"folderId,omitempty"`
	DurationHours     int       `json:"durationHours,omitempty"`
	PercentageOff     *float64  `json:"percentageOff,omitempty"`
	DollarOff         *float64  `json:"dollarOff,omitempty"`
	BuyQuantity       *int      `json:"buyQuantity,omitempty"`
	GetQuantity       *int      `json:"getQuantity,omitempty"`
	BogoPercentageOff *float64  `json:"bogoPercentageOff,omitempty"`
	SpendThreshold    *float64  `json:"spendThreshold,omitempty"`
	ThresholdDiscount *float64  `json:"thresholdDiscount,omitempty"`
	Discount          *string   `json:"discount,omitempty"`
}

func (d OfferDraft) MarshalJSON() ([]byte, error) {
	out := draftJSON{
		PermutationID: d.PermutationID,
		OfferType:     d.OfferType(),
		Title:         d.Title,
		Product:       d.Product,
		Label:         d.Label,
		FolderID:      d.FolderID,
		DurationHours: d.DurationHours,
	}
	switch t := d.Terms.(type) {
	case PercentageTerms:
		out.PercentageOff = &t.PercentageOff
	case DollarAmountTerms:
		out.DollarOff = &t.DollarOff
	case BogoTerms:
		out.BuyQuantity = &t.BuyQuantity
		out.GetQuantity = &t.GetQuantity
		out.BogoPercentageOff = &t.BogoPercentageOff
	case SpendThresholdTerms:
		out.SpendThreshold = &t.SpendThreshold
		out.ThresholdDiscount = &t.ThresholdDiscount
	case LegacyTerms:
		out.Discount = &t.Discount
	default:
		return nil, fmt.Errorf("draft %s has no terms", d.PermutationID)
	}
	return json.Marshal(out)
}

func (d *OfferDraft) UnmarshalJSON(data []byte) error {
	var in draftJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	missing := func(field string) error {
		return fmt.Errorf("draft %s (%s) is missing %s", in.PermutationID, in.OfferType, field)
	}
	var terms Terms
	switch in.OfferType {
	case OfferTypePercentage:
		if in.PercentageOff == nil {
			return missing(FieldPercentageOff)
		}
		terms = PercentageTerms{PercentageOff: *in.PercentageOff}
	case OfferTypeDollarAmount:
		if in.DollarOff == nil {
			return missing(FieldDollarOff)
		}
		terms = DollarAmountTerms{DollarOff: *in.DollarOff}
	case OfferTypeBogo:
		if in.BuyQuantity == nil || in.GetQuantity == nil || in.BogoPercentageOff == nil {
			return missing("bogo fields")
		}
		terms = BogoTerms{BuyQuantity: *in.BuyQuantity, GetQuantity: *in.GetQuantity, BogoPercentageOff: *in.BogoPercentageOff}
	case OfferTypeSpendThreshold:
		if in.SpendThreshold == nil || in.ThresholdDiscount == nil {
			return missing("spend threshold fields")
		}
		terms = SpendThresholdTerms{SpendThreshold: *in.SpendThreshold, ThresholdDiscount: *in.ThresholdDiscount}
	case OfferTypeUnset:
		if in.Discount == nil {
			return missing(FieldDiscount)
		}
		terms = LegacyTerms{Discount: *in.Discount}
	default:
		return fmt.Errorf("draft %s has unknown offer type %q", in.PermutationID, in.OfferType)
	}

	*d = OfferDraft{
		PermutationID: in.PermutationID,
		Label:         in.Label,
		Title:         in.Title,
		Product:       in.Product,
		FolderID:      in.FolderID,
		DurationHours: in.DurationHours,
		Terms:         terms,
	}
	return nil
}

// Fingerprint 是整批草稿规范 JSON 的 sha256，用来判断 Review 之后草稿是否被改过
func Fingerprint(drafts []OfferDraft) (string, error) {
	data, err := json.Marshal(drafts)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
