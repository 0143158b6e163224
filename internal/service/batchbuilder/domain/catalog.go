// internal/service/batchbuilder/domain/catalog.go
package domain

import (
	"fmt"
)

// OfferType 是 permutation 所测试的优惠机制。
// 空值表示旧版优惠，只有自由文本的 discount 描述。
type OfferType string

const (
	OfferTypeUnset          OfferType = ""
	OfferTypePercentage     OfferType = "percentage"      // 百分比折扣
	OfferTypeDollarAmount   OfferType = "dollar_amount"   // 立减金额
	OfferTypeBogo           OfferType = "bogo"            // 买 X 送 Y
	OfferTypeSpendThreshold OfferType = "spend_threshold" // 满减
)

// ParseOfferType 校验字符串是否为已知的优惠机制
func ParseOfferType(s string) (OfferType, bool) {
	switch t := OfferType(s); t {
	case OfferTypePercentage, OfferTypeDollarAmount, OfferTypeBogo, OfferTypeSpendThreshold:
		return t, true
	}
	return OfferTypeUnset, false
}

// Value 是某个维度下的一个可选值。
// Presets 为 Stage 1 预填的字段（例如 "20pct" 预填 percentageOff=20），商户的显式输入优先。
type Value struct {
	Key     string             `json:"key"`
	Label   string             `json:"label"`
	Presets map[string]float64 `json:"presets,omitempty"`
}

// Dimension 是商户可以测试的一个变化轴。
type Dimension struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	ValueOptions []Value `json:"valueOptions"`
}

func (d *Dimension) indexOf(valueKey string) int {
	for i, v := range d.ValueOptions {
		if v.Key == valueKey {
			return i
		}
	}
	return -1
}

// Catalog 是不可变的维度目录，启动时加载一次。
type Catalog struct {
	Dimensions []Dimension `json:"dimensions"`
	// MechanicDimension 指明哪个维度的值是优惠机制；为空时所有 permutation 都是旧版优惠
	MechanicDimension string `json:"mechanicDimension,omitempty"`
	// LabelTemplate 中的 {key} 会被替换为该维度所选值的 label
	LabelTemplate   string `json:"labelTemplate,omitempty"`
	MaxPermutations int    `json:"maxPermutations"`
}

// NewCatalog 校验并创建维度目录
func NewCatalog(dimensions []Dimension, mechanicDimension, labelTemplate string, maxPermutations int) (*Catalog, error) {
	if len(dimensions) == 0 {
		return nil, fmt.Errorf("catalog needs at least one dimension")
	}
	seen := make(map[string]bool, len(dimensions))
	for _, d := range dimensions {
		if d.Key == "" {
			return nil, fmt.Errorf("catalog dimension with empty key")
		}
		if seen[d.Key] {
			return nil, fmt.Errorf("duplicate catalog dimension %q", d.Key)
		}
		seen[d.Key] = true
		if len(d.ValueOptions) == 0 {
			return nil, fmt.Errorf("dimension %q has no values", d.Key)
		}

		values := make(map[string]bool, len(d.ValueOptions))
		for _, v := range d.ValueOptions {
			if v.Key == "" {
				return nil, fmt.Errorf("dimension %q has a value with empty key", d.Key)
			}
			if values[v.Key] {
				return nil, fmt.Errorf("dimension %q has duplicate value %q", d.Key, v.Key)
			}
			values[v.Key] = true
			if d.Key == mechanicDimension {
				if _, ok := ParseOfferType(v.Key); !ok {
					return nil, fmt.Errorf("mechanic dimension %q has unknown offer type %q", d.Key, v.Key)
				}
			}
			for field := range v.Presets {
				if !isPresetField(field) {
					return nil, fmt.Errorf("value %s.%s presets unknown field %q", d.Key, v.Key, field)
				}
			}
		}
	}
	if mechanicDimension != "" && !seen[mechanicDimension] {
		return nil, fmt.Errorf("mechanic dimension %q is not in the catalog", mechanicDimension)
	}
	if maxPermutations < 0 {
		return nil, fmt.Errorf("maxPermutations must not be negative")
	}

	return &Catalog{
		Dimensions:        dimensions,
		MechanicDimension: mechanicDimension,
		LabelTemplate:     labelTemplate,
		MaxPermutations:   maxPermutations,
	}, nil
}

// Dimension 按 key 查找维度
func (c *Catalog) Dimension(key string) (*Dimension, bool) {
	for i := range c.Dimensions {
		if c.Dimensions[i].Key == key {
			return &c.Dimensions[i], true
		}
	}
	return nil, false
}
