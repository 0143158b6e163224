// internal/service/batchbuilder/infrastructure/codec.go
package infrastructure

import (
	"encoding/json"
	"fmt"

	"flashpromo/internal/service/batchbuilder/domain"
)

// selectionSchemaVersion 变化时旧文档会被当作损坏处理，构建从 Intake 重新开始
const selectionSchemaVersion = 1

type selectionEnvelope struct {
	Version   int                         `json:"v"`
	Selection *domain.BatchBuildSelection `json:"selection"`
}

func encodeSelection(sel *domain.BatchBuildSelection) ([]byte, error) {
	return json.Marshal(selectionEnvelope{Version: selectionSchemaVersion, Selection: sel})
}

// decodeSelection 任何解析或结构问题都返回 domain.ErrCorruptedSelection
func decodeSelection(data []byte) (*domain.BatchBuildSelection, error) {
	var env selectionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptedSelection, err)
	}
	if env.Version != selectionSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", domain.ErrCorruptedSelection, env.Version)
	}
	sel := env.Selection
	if sel == nil {
		return nil, fmt.Errorf("%w: empty document", domain.ErrCorruptedSelection)
	}
	if !sel.Stage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", domain.ErrCorruptedSelection, sel.Stage)
	}

	seen := make(map[string]bool, len(sel.Permutations))
	for _, c := range sel.Permutations {
		if c.ID == "" || seen[c.ID] {
			return nil, fmt.Errorf("%w: missing or duplicate permutation id", domain.ErrCorruptedSelection)
		}
		seen[c.ID] = true
		if c.OfferType != domain.OfferTypeUnset {
			if _, ok := domain.ParseOfferType(string(c.OfferType)); !ok {
				return nil, fmt.Errorf("%w: unknown offer type %q", domain.ErrCorruptedSelection, c.OfferType)
			}
		}
	}
	return sel, nil
}
