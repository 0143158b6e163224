package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"flashpromo/internal/service/offer/application"
	"flashpromo/internal/service/offer/domain"
	"flashpromo/internal/service/offer/infrastructure"
)

type repoStub struct {
	mu      sync.Mutex
	batches map[string]*domain.Batch
}

func (r *repoStub) FindBatchByToken(_ context.Context, token string) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[token]; ok {
		return b, nil
	}
	return nil, domain.ErrBatchNotFound
}

func (r *repoStub) CreateBatch(_ context.Context, batch *domain.Batch, _ []*domain.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[batch.Token] = batch
	return nil
}

func (r *repoStub) ListFolders(_ context.Context, merchantID string) ([]domain.Folder, error) {
	return []domain.Folder{{ID: "f1", MerchantID: merchantID, Name: "Spring"}}, nil
}

type noCache struct{}

func (noCache) Get(context.Context, string) (*domain.Batch, error) { return nil, nil }
func (noCache) Put(context.Context, *domain.Batch) error           { return nil }

type noPolicies struct{}

func (noPolicies) Evaluate(context.Context, *domain.Draft) ([]domain.FieldError, error) {
	return nil, nil
}

type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context, _ string) (func() error, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newRouter(locker domain.Locker) *mux.Router {
	repo := &repoStub{batches: make(map[string]*domain.Batch)}
	svc := application.NewOfferService(repo, noCache{}, locker, noPolicies{}, noop.NewTracerProvider().Tracer("test"), 10, 20*time.Millisecond)
	r := mux.NewRouter()
	NewOfferHandler(svc).RegisterRoutes(r)
	return r
}

const batchBody = `{"idempotencyToken":"token-1","merchantId":"m-1","drafts":[
	{"permutationId":"p1","offerType":"percentage","title":"Spring","product":"Latte","label":"20%","percentageOff":20},
	{"permutationId":"p2","offerType":"dollar_amount","title":"Spring","product":"Latte","label":"$5","dollarOff":5}
]}`

func post(r http.Handler, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/offers/batch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateBatch_CreatedThenReplayed(t *testing.T) {
	r := newRouter(infrastructure.LocalLocker{})

	first := post(r, batchBody, nil)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	var created application.CreateBatchResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))
	assert.Len(t, created.CreatedIDs, 2)
	assert.NotEmpty(t, created.BatchID)

	second := post(r, batchBody, map[string]string{"Idempotency-Key": "token-1"})
	require.Equal(t, http.StatusOK, second.Code)
	var replayed application.CreateBatchResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &replayed))
	assert.Equal(t, created.CreatedIDs, replayed.CreatedIDs)
}

func TestCreateBatch_ErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		locker   domain.Locker
		body     string
		header   map[string]string
		wantCode int
		wantErr  string
	}{
		{"bad json", infrastructure.LocalLocker{}, `{`, nil, http.StatusBadRequest, "invalid_body"},
		{"header mismatch", infrastructure.LocalLocker{}, batchBody, map[string]string{"Idempotency-Key": "other"}, http.StatusBadRequest, "token_mismatch"},
		{"missing drafts", infrastructure.LocalLocker{}, `{"idempotencyToken":"t"}`, nil, http.StatusUnprocessableEntity, "validation_failed"},
		{"invalid draft", infrastructure.LocalLocker{},
			`{"idempotencyToken":"t","drafts":[{"permutationId":"p1","offerType":"percentage","title":"a","product":"b","percentageOff":150}]}`,
			nil, http.StatusUnprocessableEntity, "validation_failed"},
		{"in progress", busyLocker{}, batchBody, nil, http.StatusConflict, "request_in_progress"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(newRouter(tt.locker), tt.body, tt.header)
			assert.Equal(t, tt.wantCode, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body.Code)
		})
	}
}

func TestCreateBatch_TokenFromHeader(t *testing.T) {
	r := newRouter(infrastructure.LocalLocker{})
	body := `{"drafts":[{"permutationId":"p1","title":"a","product":"b","discount":"Free cookie"}]}`
	rec := post(r, body, map[string]string{"Idempotency-Key": "header-token"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateBatch_SameTokenDifferentContent(t *testing.T) {
	r := newRouter(infrastructure.LocalLocker{})
	require.Equal(t, http.StatusCreated, post(r, batchBody, nil).Code)

	changed := strings.Replace(batchBody, `"percentageOff":20`, `"percentageOff":25`, 1)
	rec := post(r, changed, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "idempotency_conflict")
}

func TestListFolders(t *testing.T) {
	r := newRouter(infrastructure.LocalLocker{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/folders", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/folders?merchantId=m-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"f1","name":"Spring"}]`, rec.Body.String())
}

func TestCheckRequest(t *testing.T) {
	h := NewOfferHandler(nil)

	status, body := h.checkRequest((*application.CreateBatchRequest)(nil))
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, body)
	assert.Equal(t, "invalid_body", body.Code)

	status, body = h.checkRequest(&application.CreateBatchRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotNil(t, body)
	assert.Equal(t, "validation_failed", body.Code)

	_, body = h.checkRequest(&application.CreateBatchRequest{IdempotencyToken: "t", Drafts: []domain.Draft{{PermutationID: "p1"}}})
	assert.Nil(t, body)
}
