// internal/service/offer/domain/draft.go
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"
)

// 支持的优惠机制，空字符串为只有文字描述的旧版优惠
const (
	OfferTypeLegacy         = ""
	OfferTypePercentage     = "percentage"
	OfferTypeDollarAmount   = "dollar_amount"
	OfferTypeBogo           = "bogo"
	OfferTypeSpendThreshold = "spend_threshold"
)

// Draft 是请求中的一条优惠草稿，保持线上格式的扁平结构，字段是否出现由 Validate 检查。
type Draft struct {
	PermutationID     string   `json:"permutationId"`
	OfferType         string   `json:"offerType,omitempty"`
	Title             string   `json:"title"`
	Product           string   `json:"product"`
	Label             string   `json:"label"`
	FolderID          string   `json:"folderId,omitempty"`
	DurationHours     int      `json:"durationHours,omitempty"`
	PercentageOff     *float64 `json:"percentageOff,omitempty"`
	DollarOff         *float64 `json:"dollarOff,omitempty"`
	BuyQuantity       *float64 `json:"buyQuantity,omitempty"`
	GetQuantity       *float64 `json:"getQuantity,omitempty"`
	BogoPercentageOff *float64 `json:"bogoPercentageOff,omitempty"`
	SpendThreshold    *float64 `json:"spendThreshold,omitempty"`
	ThresholdDiscount *float64 `json:"thresholdDiscount,omitempty"`
	Discount          *string  `json:"discount,omitempty"`
}

type fieldKind int

const (
	kindAmount fieldKind = iota
	kindPercentage
	kindQuantity
)

type termField struct {
	name string
	kind fieldKind
	get  func(*Draft) *float64
}

var (
	fPercentageOff     = termField{"percentageOff", kindPercentage, func(d *Draft) *float64 { return d.PercentageOff }}
	fDollarOff         = termField{"dollarOff", kindAmount, func(d *Draft) *float64 { return d.DollarOff }}
	fBuyQuantity       = termField{"buyQuantity", kindQuantity, func(d *Draft) *float64 { return d.BuyQuantity }}
	fGetQuantity       = termField{"getQuantity", kindQuantity, func(d *Draft) *float64 { return d.GetQuantity }}
	fBogoPercentageOff = termField{"bogoPercentageOff", kindPercentage, func(d *Draft) *float64 { return d.BogoPercentageOff }}
	fSpendThreshold    = termField{"spendThreshold", kindAmount, func(d *Draft) *float64 { return d.SpendThreshold }}
	fThresholdDiscount = termField{"thresholdDiscount", kindAmount, func(d *Draft) *float64 { return d.ThresholdDiscount }}

	allTermFields = []termField{fPercentageOff, fDollarOff, fBuyQuantity, fGetQuantity, fBogoPercentageOff, fSpendThreshold, fThresholdDiscount}

	// requiredFields 是每种机制必须且只能出现的数值字段
	requiredFields = map[string][]termField{
		OfferTypeLegacy:         nil,
		OfferTypePercentage:     {fPercentageOff},
		OfferTypeDollarAmount:   {fDollarOff},
		OfferTypeBogo:           {fBuyQuantity, fGetQuantity, fBogoPercentageOff},
		OfferTypeSpendThreshold: {fSpendThreshold, fThresholdDiscount},
	}
)

// Validate 检查草稿恰好带有其机制要求的字段，并且数值合法
func (d *Draft) Validate() []FieldError {
	var errs []FieldError
	add := func(field, reason string) {
		errs = append(errs, FieldError{PermutationID: d.PermutationID, Field: field, Reason: reason})
	}

	if strings.TrimSpace(d.PermutationID) == "" {
		add("permutationId", "required")
	}
	if strings.TrimSpace(d.Title) == "" {
		add("title", "required")
	}
	if strings.TrimSpace(d.Product) == "" {
		add("product", "required")
	}
	if d.DurationHours < 0 {
		add("durationHours", "must be non-negative")
	}

	required, ok := requiredFields[d.OfferType]
	if !ok {
		add("offerType", "unsupported offer type")
		return errs
	}

	wanted := make(map[string]bool, len(required))
	for _, f := range required {
		wanted[f.name] = true
	}
	for _, f := range allTermFields {
		v := f.get(d)
		switch {
		case wanted[f.name] && v == nil:
			add(f.name, "required")
		case !wanted[f.name] && v != nil:
			add(f.name, "not allowed for this offer type")
		case v != nil:
			if reason := checkNumber(*v, f.kind); reason != "" {
				add(f.name, reason)
			}
		}
	}

	if d.OfferType == OfferTypeLegacy {
		if d.Discount == nil || strings.TrimSpace(*d.Discount) == "" {
			add("discount", "required")
		}
	} else if d.Discount != nil {
		add("discount", "not allowed for this offer type")
	}
	return errs
}

func checkNumber(v float64, kind fieldKind) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "must be finite"
	}
	if v < 0 {
		return "must be non-negative"
	}
	switch kind {
	case kindPercentage:
		if v > 100 {
			return "exceeds 100"
		}
	case kindQuantity:
		if v != math.Trunc(v) {
			return "must be a whole number"
		}
		if v < 1 {
			return "must be at least 1"
		}
	}
	return ""
}

// Facts 把草稿展开成规则引擎使用的键值对，只包含出现的字段
func (d *Draft) Facts() map[string]any {
	facts := map[string]any{
		"permutationId": d.PermutationID,
		"offerType":     string(d.OfferType),
		"title":         d.Title,
		"product":       d.Product,
		"label":         d.Label,
		"durationHours": int64(d.DurationHours),
	}
	for _, f := range allTermFields {
		if v := f.get(d); v != nil {
			facts[f.name] = *v
		}
	}
	if d.Discount != nil {
		facts["discount"] = *d.Discount
	}
	return facts
}

// Fingerprint 计算整批草稿的哈希，同一 token 的重放请求必须携带相同内容
func Fingerprint(drafts []Draft) string {
	data, _ := json.Marshal(drafts)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
