package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bip-service/config"
	"bip-service/internal/auth"
	"bip-service/internal/models"
	"bip-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIToken  = "scanner-token"
	testJWTSecret = "test-secret"
)

type stubBips struct {
	webhookReq  *service.WebhookRequest
	webhookRes  *service.WebhookResult
	cancelReq   *service.CancelRequest
	err         error
	uploaded    []byte
	uploadKind  string
	exportCalls int
}

func (s *stubBips) IngestWebhook(ctx context.Context, req *service.WebhookRequest) (*service.WebhookResult, error) {
	s.webhookReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.webhookRes, nil
}

func (s *stubBips) CancelBip(ctx context.Context, bipID int64, req *service.CancelRequest) (*service.CascadeResult, error) {
	s.cancelReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &service.CascadeResult{Count: 2, Bips: []models.Bip{{ID: bipID}, {ID: bipID + 1}}}, nil
}

func (s *stubBips) ReactivateBip(ctx context.Context, bipID int64) (*service.CascadeResult, error) {
	return nil, s.err
}

func (s *stubBips) GetBip(ctx context.Context, bipID int64) (*models.BipListItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.BipListItem{Bip: models.Bip{ID: bipID}}, nil
}

func (s *stubBips) ListBips(ctx context.Context, q *service.BipListQuery) (*service.BipListResult, error) {
	if q.DateFrom == "" {
		return nil, &service.ValidationError{Code: "date_range_required", Message: "Informe date_from e date_to"}
	}
	return &service.BipListResult{Data: []models.BipListItem{}, Pagination: service.NewPagination(1, 20, 0), Filters: *q}, nil
}

func (s *stubBips) ExportBips(ctx context.Context, q *service.BipListQuery, w io.Writer) (int, error) {
	s.exportCalls++
	_, err := w.Write([]byte("xlsx"))
	return 1, err
}

func (s *stubBips) AttachMedia(ctx context.Context, bipID int64, kind string, r io.Reader, size int64) (*models.Bip, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.uploaded = data
	s.uploadKind = kind
	url := "mem://" + kind
	return &models.Bip{ID: bipID, ImageURL: &url}, nil
}

func (s *stubBips) RemoveMedia(ctx context.Context, bipID int64, kind string) (*models.Bip, error) {
	return &models.Bip{ID: bipID}, nil
}

type stubReadiness map[string]bool

func (s stubReadiness) Status() map[string]bool { return s }

func newTestRouter(t *testing.T, bips *stubBips, readiness ReadinessChecker) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(Services{Bips: bips, Readiness: readiness}, config.AuthConfig{
		APIToken:  testAPIToken,
		JWTSecret: testJWTSecret,
	}, nil)
	router := gin.New()
	h.SetupRoutes(router)
	return router
}

func bearerJWT(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateToken(42, "admin", []byte(testJWTSecret), time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(router *gin.Engine, method, path, authz string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWebhookAuth(t *testing.T) {
	bips := &stubBips{webhookRes: &service.WebhookResult{Bip: &models.Bip{ID: 1}}}
	router := newTestRouter(t, bips, nil)

	w := doJSON(router, http.MethodPost, "/api/bipagens/webhook", "", map[string]string{"raw": "789"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/api/bipagens/webhook", "Bearer wrong", map[string]string{"raw": "789"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/api/bipagens/webhook", "Bearer "+testAPIToken, map[string]string{"raw": "789"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/api/bipagens/webhook", bearerJWT(t), map[string]string{"raw": "789"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestWebhookDuplicateAndIdempotencyHeader(t *testing.T) {
	bips := &stubBips{webhookRes: &service.WebhookResult{Bip: &models.Bip{ID: 9}, Duplicate: true}}
	router := newTestRouter(t, bips, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/bipagens/webhook", strings.NewReader(`{"raw":"789"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	req.Header.Set("Idempotency-Key", " delivery-1 ")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "delivery-1", bips.webhookReq.IdempotencyKey)

	var body struct {
		Data      models.Bip `json:"data"`
		Duplicate bool       `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Duplicate)
	assert.Equal(t, int64(9), body.Data.ID)
}

func TestWebhookErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrEmptyRaw, http.StatusBadRequest, "raw_required"},
		{service.ErrDuplicateInFlight, http.StatusConflict, "duplicate_in_flight"},
		{assert.AnError, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			router := newTestRouter(t, &stubBips{err: tt.err}, nil)
			w := doJSON(router, http.MethodPost, "/api/bipagens/webhook", "Bearer "+testAPIToken, map[string]string{"raw": " "})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestCancelBip(t *testing.T) {
	bips := &stubBips{}
	router := newTestRouter(t, bips, nil)

	w := doJSON(router, http.MethodPut, "/api/bips/5/cancel", bearerJWT(t), map[string]string{"motivo_cancelamento": "sumiu"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_reason", decodeError(t, w).Code)
	assert.Nil(t, bips.cancelReq)

	w = doJSON(router, http.MethodPut, "/api/bips/abc/cancel", bearerJWT(t), map[string]string{"motivo_cancelamento": models.MotivoFurto})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_id", decodeError(t, w).Code)

	w = doJSON(router, http.MethodPut, "/api/bips/5/cancel", bearerJWT(t), map[string]string{"motivo_cancelamento": models.MotivoFurto})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Message string       `json:"message"`
		Count   int          `json:"count"`
		Data    []models.Bip `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Data, 2)
	assert.Equal(t, models.MotivoFurto, bips.cancelReq.MotivoCancelamento)
}

func TestCancelBipServiceErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrBipNotFound, http.StatusNotFound, "bip_not_found"},
		{service.ErrBipNotPending, http.StatusBadRequest, "bip_not_pending"},
		{service.ErrEmployeeRequired, http.StatusBadRequest, "employee_required"},
		{service.ErrEmployeeNotFound, http.StatusBadRequest, "employee_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			router := newTestRouter(t, &stubBips{err: tt.err}, nil)
			w := doJSON(router, http.MethodPut, "/api/bips/5/cancel", bearerJWT(t),
				map[string]string{"motivo_cancelamento": models.MotivoErroOperador})
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestCancelBipBindErrorsArePortuguese(t *testing.T) {
	bips := &stubBips{}
	router := newTestRouter(t, bips, nil)

	w := doJSON(router, http.MethodPut, "/api/bips/5/cancel", bearerJWT(t), map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "invalid_request", body.Code)
	assert.Equal(t, "Requisição inválida: o campo motivo_cancelamento é obrigatório", body.Error)

	req := httptest.NewRequest(http.MethodPut, "/api/bips/5/cancel", strings.NewReader(`{"motivo_cancelamento":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerJWT(t))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = decodeError(t, w)
	assert.Equal(t, "invalid_request", body.Code)
	assert.NotContains(t, body.Error, "unexpected EOF")
	assert.Nil(t, bips.cancelReq)
}

func TestDashboardRoutesRequireJWT(t *testing.T) {
	router := newTestRouter(t, &stubBips{}, nil)

	w := doJSON(router, http.MethodGet, "/api/bips?date_from=2024-05-10&date_to=2024-05-10", "Bearer "+testAPIToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/api/bips?date_from=2024-05-10&date_to=2024-05-10", bearerJWT(t), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/bips", bearerJWT(t), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "date_range_required", decodeError(t, w).Code)
}

func TestExportBips(t *testing.T) {
	bips := &stubBips{}
	router := newTestRouter(t, bips, nil)

	w := doJSON(router, http.MethodGet, "/api/bips/export?date_from=2024-05-01&date_to=2024-05-31", bearerJWT(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "bipagens_2024-05-01_2024-05-31.xlsx")
	assert.Equal(t, "1", w.Header().Get("X-Total-Rows"))
	assert.Equal(t, 1, bips.exportCalls)
}

func TestAttachImage(t *testing.T) {
	bips := &stubBips{}
	router := newTestRouter(t, bips, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("image", "shot.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/bips/3/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", bearerJWT(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", string(bips.uploaded))
	assert.Equal(t, service.MediaImage, bips.uploadKind)
}

func TestAttachWithoutFileField(t *testing.T) {
	router := newTestRouter(t, &stubBips{}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("video", "not a file"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/bips/3/video", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", bearerJWT(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "file_required", decodeError(t, w).Code)
}

func TestReadiness(t *testing.T) {
	router := newTestRouter(t, &stubBips{}, stubReadiness{"postgres": true, "redis": false})
	w := doJSON(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	router = newTestRouter(t, &stubBips{}, stubReadiness{"postgres": true, "redis": true})
	w = doJSON(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
