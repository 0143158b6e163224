package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashpromo/internal/service/batchbuilder/domain"
)

func sampleSelection() *domain.BatchBuildSelection {
	pct := 20.0
	return &domain.BatchBuildSelection{
		Permutations: []domain.PermutationCard{
			{ID: "p1", ValueAssignment: map[string]string{"mechanic": "percentage"}, Label: "% off", OfferType: domain.OfferTypePercentage, Selected: true},
			{ID: "p2", ValueAssignment: map[string]string{"mechanic": "bogo"}, Label: "BOGO", OfferType: domain.OfferTypeBogo},
		},
		Choices: map[string][]string{"mechanic": {"percentage", "bogo"}},
		FormData: domain.FormData{
			OfferTitle: "Spring sale",
			Product:    "Latte",
			Terms:      map[string]domain.TermFields{"p1": {PercentageOff: &pct}},
		},
		Stage:      domain.StageReview,
		BatchToken: "token-1",
		Drafts: []domain.OfferDraft{
			{PermutationID: "p1", Label: "% off", Title: "Spring sale", Product: "Latte", Terms: domain.PercentageTerms{PercentageOff: 20}},
		},
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore_SaveOfLoadIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	require.NoError(t, store.Save(ctx, "s1", sampleSelection()))
	first, ok := store.Raw("s1")
	require.True(t, ok)

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.NoError(t, store.Save(ctx, "s1", loaded))
	second, _ := store.Raw("s1")
	assert.JSONEq(t, string(first), string(second))

	assert.Equal(t, domain.PercentageTerms{PercentageOff: 20}, loaded.Drafts[0].Terms)
	assert.Equal(t, domain.StageReview, loaded.Stage)
}

func TestMemoryStore_MissingAndCleared(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	sel, err := store.Load(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, sel)

	require.NoError(t, store.Save(ctx, "s1", sampleSelection()))
	require.NoError(t, store.Clear(ctx, "s1"))
	sel, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, sel)
}

func TestMemoryStore_Expires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute)
	store.now = func() time.Time { return now }
	require.NoError(t, store.Save(ctx, "s1", sampleSelection()))

	now = now.Add(2 * time.Minute)
	sel, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, sel)
}

func TestMemoryStore_CorruptedDocumentIsTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	for name, raw := range map[string]string{
		"not json":        `{"v":1,"selection":`,
		"wrong version":   `{"v":99,"selection":{"permutations":[],"stage":"intake"}}`,
		"no selection":    `{"v":1}`,
		"unknown stage":   `{"v":1,"selection":{"permutations":[],"stage":"shipping"}}`,
		"duplicate ids":   `{"v":1,"selection":{"permutations":[{"id":"a"},{"id":"a"}],"stage":"intake"}}`,
		"unknown offer":   `{"v":1,"selection":{"permutations":[{"id":"a","offerType":"cashback"}],"stage":"intake"}}`,
		"incomplete term": `{"v":1,"selection":{"permutations":[],"stage":"review","drafts":[{"permutationId":"a","offerType":"percentage"}]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			store.PutRaw("s1", []byte(raw))
			sel, err := store.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Nil(t, sel)
		})
	}
}

func TestDecodeSelection_ReportsCorruption(t *testing.T) {
	_, err := decodeSelection([]byte(`[]`))
	assert.ErrorIs(t, err, domain.ErrCorruptedSelection)

	data, err := encodeSelection(sampleSelection())
	require.NoError(t, err)
	sel, err := decodeSelection(data)
	require.NoError(t, err)
	assert.Equal(t, "token-1", sel.BatchToken)
}

func TestMemoryGuard(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryGuard()

	release, err := guard.Acquire(ctx, "token-1")
	require.NoError(t, err)

	_, err = guard.Acquire(ctx, "token-1")
	assert.ErrorIs(t, err, domain.ErrSubmissionInFlight)
	held, err := guard.InFlight(ctx, "token-1")
	require.NoError(t, err)
	assert.True(t, held)

	other, err := guard.Acquire(ctx, "token-2")
	require.NoError(t, err)
	other()

	release()
	release()
	held, err = guard.InFlight(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, held)
}
