// internal/service/batchbuilder/domain/permutation.go
package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// permutationNamespace 是 permutation id 的 UUIDv5 命名空间，修改它会让所有已保存的选择失效
var permutationNamespace = uuid.MustParse("6f1c7a52-3b0e-4f55-9a51-2d8e0c4b7d10")

// PermutationCard 是维度值的一个具体组合，即一个候选优惠变体。
type PermutationCard struct {
	ID              string             `json:"id"`
	ValueAssignment map[string]string  `json:"valueAssignment"`
	Label           string             `json:"label"`
	OfferType       OfferType          `json:"offerType"`
	Selected        bool               `json:"selected"`
	Presets         map[string]float64 `json:"presets,omitempty"`
}

// Generate 对每个维度所选的值做笛卡尔积。
//
// 输出顺序先按维度顺序、再按目录中的值顺序，传入的值会先按目录顺序归一并去重，
// 所以相同的选择总是得到相同的 id 序列。任何维度没有选值时返回空结果。
func Generate(catalog *Catalog, chosen map[string][]string) ([]PermutationCard, error) {
	for key := range chosen {
		if _, ok := catalog.Dimension(key); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, key)
		}
	}

	// 1. 把每个维度的选值归一成目录下标
	indexes := make([][]int, len(catalog.Dimensions))
	empty := false
	for i := range catalog.Dimensions {
		dim := &catalog.Dimensions[i]
		picked := make([]bool, len(dim.ValueOptions))
		for _, valueKey := range chosen[dim.Key] {
			idx := dim.indexOf(valueKey)
			if idx < 0 {
				return nil, fmt.Errorf("%w: %s=%q", ErrUnknownValue, dim.Key, valueKey)
			}
			picked[idx] = true
		}
		for idx, ok := range picked {
			if ok {
				indexes[i] = append(indexes[i], idx)
			}
		}
		if len(indexes[i]) == 0 {
			empty = true
		}
	}
	if empty {
		return []PermutationCard{}, nil
	}

	// 2. 先算组合数，超过上限直接失败，不截断
	total, err := combinationCount(indexes, catalog.MaxPermutations)
	if err != nil {
		return nil, err
	}

	// 3. 里程表式枚举，最后一个维度变化最快
	cards := make([]PermutationCard, 0, total)
	cursor := make([]int, len(indexes))
	for {
		cards = append(cards, buildCard(catalog, indexes, cursor))

		pos := len(cursor) - 1
		for pos >= 0 {
			cursor[pos]++
			if cursor[pos] < len(indexes[pos]) {
				break
			}
			cursor[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return cards, nil
}

func combinationCount(indexes [][]int, limit int) (int, error) {
	total := 1
	for _, idx := range indexes {
		n := len(idx)
		if limit > 0 && total > limit/n {
			return 0, fmt.Errorf("%w: more than %d combinations", ErrTooManyPermutations, limit)
		}
		// 没有上限时也不能溢出
		if total > math.MaxInt/n {
			return 0, fmt.Errorf("%w: combination count overflows", ErrTooManyPermutations)
		}
		total *= n
	}
	if limit > 0 && total > limit {
		return 0, fmt.Errorf("%w: %d combinations exceed the limit of %d", ErrTooManyPermutations, total, limit)
	}
	return total, nil
}

func buildCard(catalog *Catalog, indexes [][]int, cursor []int) PermutationCard {
	assignment := make(map[string]string, len(cursor))
	var canonical strings.Builder
	var presets map[string]float64
	labels := make(map[string]string, len(cursor))
	offerType := OfferTypeUnset

	for i, c := range cursor {
		dim := &catalog.Dimensions[i]
		value := dim.ValueOptions[indexes[i][c]]
		assignment[dim.Key] = value.Key
		labels[dim.Key] = valueLabel(value)

		if i > 0 {
			canonical.WriteByte('|')
		}
		canonical.WriteString(strconv.Quote(dim.Key))
		canonical.WriteByte('=')
		canonical.WriteString(strconv.Quote(value.Key))

		if dim.Key == catalog.MechanicDimension {
			offerType = OfferType(value.Key)
		}
		for field, v := range value.Presets {
			if presets == nil {
				presets = make(map[string]float64)
			}
			// 靠前的维度优先
			if _, exists := presets[field]; !exists {
				presets[field] = v
			}
		}
	}

	return PermutationCard{
		ID:              uuid.NewSHA1(permutationNamespace, []byte(canonical.String())).String(),
		ValueAssignment: assignment,
		Label:           renderLabel(catalog, labels),
		OfferType:       offerType,
		Selected:        true,
		Presets:         presets,
	}
}

func valueLabel(v Value) string {
	if v.Label != "" {
		return v.Label
	}
	return v.Key
}

// renderLabel 做 {key} 模板替换，没有模板时用 " · " 连接各维度的 label
func renderLabel(catalog *Catalog, labels map[string]string) string {
	if catalog.LabelTemplate == "" {
		parts := make([]string, 0, len(catalog.Dimensions))
		for _, d := range catalog.Dimensions {
			parts = append(parts, labels[d.Key])
		}
		return strings.Join(parts, " · ")
	}
	pairs := make([]string, 0, 2*len(labels))
	for _, d := range catalog.Dimensions {
		pairs = append(pairs, "{"+d.Key+"}", labels[d.Key])
	}
	return strings.NewReplacer(pairs...).Replace(catalog.LabelTemplate)
}
