package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"flashpromo/internal/service/batchbuilder/application"
	"flashpromo/internal/service/batchbuilder/domain"
	"flashpromo/internal/service/batchbuilder/domain/port"
	"flashpromo/internal/service/batchbuilder/infrastructure"
)

type stubOffers struct {
	err   error
	calls int
}

func (s *stubOffers) BatchCreate(_ context.Context, req *port.BatchCreateRequest) (*port.BatchCreateResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]string, len(req.Drafts))
	for i := range req.Drafts {
		ids[i] = "offer-" + req.Drafts[i].PermutationID[:8]
	}
	return &port.BatchCreateResult{CreatedIDs: ids}, nil
}

type noFolders struct{}

func (noFolders) ListFolders(context.Context, string) ([]port.Folder, error) {
	return []port.Folder{{ID: "f1", Name: "Spring"}}, nil
}

const testSession = "test-session-1"

func newRouter(t *testing.T, offers port.OfferService) *mux.Router {
	t.Helper()
	catalog, err := domain.NewCatalog([]domain.Dimension{
		{Key: "mechanic", ValueOptions: []domain.Value{{Key: "percentage"}, {Key: "bogo"}}},
		{Key: "duration", ValueOptions: []domain.Value{{Key: "3d"}, {Key: "7d"}}},
	}, "mechanic", "", 3)
	require.NoError(t, err)

	svc := application.NewBuilderService(catalog, infrastructure.NewMemoryStore(time.Hour), infrastructure.NewMemoryGuard(),
		application.NewBatchSubmitter(offers, time.Second), noFolders{}, nil, noop.NewTracerProvider().Tracer("test"))
	r := mux.NewRouter()
	NewBuilderHandler(svc).RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(SessionHeader, testSession)
	req.Header.Set(MerchantHeader, "m-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func intake(choices map[string][]string) map[string]any {
	return map[string]any{"offerTitle": "Spring sale", "product": "Latte", "choices": choices}
}

func TestBuilderHandler_FullFlow(t *testing.T) {
	offers := &stubOffers{}
	r := newRouter(t, offers)

	rec := do(t, r, http.MethodPost, "/batch-builder/intake", intake(map[string][]string{"mechanic": {"percentage"}, "duration": {"3d", "7d"}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeBody[application.View](t, rec)
	assert.Equal(t, testSession, view.SessionID)
	require.Len(t, view.Permutations, 2)

	rec = do(t, r, http.MethodPost, "/batch-builder/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPut, "/batch-builder/terms/mechanic/percentage", map[string]any{"percentageOff": 150})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errBody := decodeBody[errorBody](t, rec)
	assert.Equal(t, "validation_failed", errBody.Code)
	require.Len(t, errBody.FieldErrors, 2)
	assert.Equal(t, "exceeds 100", errBody.FieldErrors[0].Reason)

	rec = do(t, r, http.MethodPut, "/batch-builder/terms/mechanic/percentage", map[string]any{"percentageOff": 20})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPost, "/batch-builder/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeBody[application.View](t, rec)
	assert.Equal(t, domain.StageReview, view.Stage)
	assert.Len(t, view.Drafts, 2)

	rec = do(t, r, http.MethodPost, "/batch-builder/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[application.SubmitResult](t, rec)
	assert.Equal(t, domain.StageCompleted, result.Stage)
	assert.Len(t, result.CreatedIDs, 2)

	rec = do(t, r, http.MethodGet, "/batch-builder", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeBody[application.View](t, rec)
	assert.Equal(t, domain.StageIntake, view.Stage)
	assert.Empty(t, view.Permutations)
}

func TestBuilderHandler_ErrorStatuses(t *testing.T) {
	r := newRouter(t, &stubOffers{})

	rec := do(t, r, http.MethodPost, "/batch-builder/advance", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_active_selection", decodeBody[errorBody](t, rec).Code)

	rec = do(t, r, http.MethodPost, "/batch-builder/intake", intake(map[string][]string{"mechanic": {"percentage", "bogo"}, "duration": {"3d", "7d"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "too_many_permutations", decodeBody[errorBody](t, rec).Code)

	rec = do(t, r, http.MethodPost, "/batch-builder/intake", intake(map[string][]string{"channel": {"sms"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_dimension", decodeBody[errorBody](t, rec).Code)

	rec = do(t, r, http.MethodPost, "/batch-builder/intake", map[string]any{"product": "Latte", "choices": map[string][]string{"mechanic": {"bogo"}}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[errorBody](t, rec)
	require.NotEmpty(t, body.FieldErrors)
	assert.Equal(t, "offerTitle", body.FieldErrors[0].Field)

	rec = do(t, r, http.MethodPost, "/batch-builder/intake", intake(map[string][]string{"mechanic": {"bogo"}, "duration": {"3d"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodPost, "/batch-builder/select-all", map[string]any{"selected": false})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodPost, "/batch-builder/advance", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_selection", decodeBody[errorBody](t, rec).Code)

	rec = do(t, r, http.MethodPost, "/batch-builder/submit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeBody[errorBody](t, rec).Code)

	rec = do(t, r, http.MethodPost, "/batch-builder/permutations/missing/toggle", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodPost, "/batch-builder/select-all", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, r, http.MethodPost, "/batch-builder/intake", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuilderHandler_TransientSubmitFailure(t *testing.T) {
	offers := &stubOffers{err: domain.NewTransientError("unavailable", "down", nil)}
	r := newRouter(t, offers)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/batch-builder/intake", intake(map[string][]string{"mechanic": {"bogo"}, "duration": {"3d"}})).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/batch-builder/advance", nil).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPut, "/batch-builder/terms/mechanic/bogo",
		map[string]any{"buyQuantity": 1, "getQuantity": 1, "bogoPercentageOff": 100}).Code)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/batch-builder/advance", nil).Code)

	rec := do(t, r, http.MethodPost, "/batch-builder/submit", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	result := decodeBody[application.SubmitResult](t, rec)
	assert.Equal(t, domain.StageFailed, result.Stage)
	require.NotNil(t, result.Error)
	assert.Equal(t, domain.SubmissionTransient, result.Error.Kind)

	offers.err = domain.NewRejectedError("validation_failed", "bad", nil)
	rec = do(t, r, http.MethodPost, "/batch-builder/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 2, offers.calls)
}

func TestBuilderHandler_CatalogAndFolders(t *testing.T) {
	r := newRouter(t, &stubOffers{})

	rec := do(t, r, http.MethodGet, "/batch-builder/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	catalog := decodeBody[application.CatalogResponse](t, rec)
	assert.Len(t, catalog.Catalog.Dimensions, 2)

	rec = do(t, r, http.MethodGet, "/batch-builder/folders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	folders := decodeBody[application.FoldersResponse](t, rec)
	assert.Equal(t, []port.Folder{{ID: "f1", Name: "Spring"}}, folders.Folders)
}

func TestSessionMiddleware(t *testing.T) {
	var seen string
	h := SessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
	}))

	// 没有会话时生成新的并写 cookie
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(SessionHeader))
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, seen, rec.Result().Cookies()[0].Value)

	// cookie 中的会话被复用
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie-session-1"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "cookie-session-1", seen)
	assert.Empty(t, rec.Result().Cookies())

	// 非法的会话 id 被替换
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeader, "../../etc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "../../etc", seen)
}
