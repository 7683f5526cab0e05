package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shipdraft/draft-service/internal/draftstore"
	"github.com/shipdraft/draft-service/internal/reference"
	"github.com/shipdraft/draft-service/internal/shipment/repository"
	"github.com/shipdraft/draft-service/internal/shipment/service"
	"github.com/shipdraft/draft-service/internal/storage"
	"github.com/shipdraft/draft-service/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testServer struct {
	router *gin.Engine
	locker *draftstore.MemoryLocker
}

func newServer(t *testing.T, backend service.Backend) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if backend == nil {
		backend = repository.NewMemoryRepo()
	}
	files := storage.NewMemory("")
	locker := draftstore.NewMemoryLocker()
	svc, err := service.New(service.Options{
		Backend:     backend,
		Store:       draftstore.NewMemoryStore(),
		Locker:      locker,
		Uploader:    files,
		Lookups:     reference.NewMemory(),
		QuietWindow: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.SubjectKey, "user-1")
		c.Next()
	})
	RegisterDraftRoutes(r, svc)
	RegisterFileRoutes(r, files)
	return &testServer{router: r, locker: locker}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *testServer) create(t *testing.T) string {
	t.Helper()
	w, out := s.do(t, http.MethodPost, "/api/shipments/drafts", gin.H{"organization": primitive.NewObjectID().Hex()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return out["id"].(string)
}

func TestCreateAndEditDraft(t *testing.T) {
	s := newServer(t, nil)
	id := s.create(t)
	base := "/api/shipments/drafts/" + id

	w, out := s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	doc := out["document"].(map[string]any)
	assert.Equal(t, "user-1", doc["createdBy"])

	w, out = s.do(t, http.MethodPatch, base+"/sections/bookingDetails", gin.H{"path": "vesselName", "value": "MSC Aurora"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	booking := out["document"].(map[string]any)["bookingDetails"].(map[string]any)
	assert.Equal(t, "MSC Aurora", booking["vesselName"])

	w, out = s.do(t, http.MethodPatch, base+"/sections/shippingDetails", gin.H{"path": "containers", "value": []any{}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "containers", out["field"])

	w, _ = s.do(t, http.MethodPatch, base+"/sections/nowhere", gin.H{"path": "x", "value": 1})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRejectsBadOrganization(t *testing.T) {
	s := newServer(t, nil)
	w, out := s.do(t, http.MethodPost, "/api/shipments/drafts", gin.H{"organization": "acme"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "organization", out["field"])
}

func TestUnknownDraft(t *testing.T) {
	s := newServer(t, nil)
	w, _ := s.do(t, http.MethodGet, "/api/shipments/drafts/"+primitive.NewObjectID().Hex(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTruncationFlowAndSubmit(t *testing.T) {
	s := newServer(t, nil)
	id := s.create(t)
	base := "/api/shipments/drafts/" + id

	w, out := s.do(t, http.MethodPut, base+"/sections/shippingDetails/count", gin.H{"group": "containers", "count": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "applied", out["outcome"])

	w, out = s.do(t, http.MethodPut, base+"/sections/shippingDetails/count", gin.H{"group": "containers", "count": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", out["outcome"])
	pending := out["draft"].(map[string]any)["pending"].([]any)
	require.Len(t, pending, 1)

	w, _ = s.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, out = s.do(t, http.MethodPost, base+"/sections/shippingDetails/confirm", gin.H{"group": "containers"})
	require.Equal(t, http.StatusOK, w.Code)
	shipping := out["document"].(map[string]any)["shippingDetails"].(map[string]any)
	assert.Len(t, shipping["containers"], 1)

	w, _ = s.do(t, http.MethodPost, base+"/sections/shippingDetails/confirm", gin.H{"group": "containers"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, out = s.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "final", out["record"].(map[string]any)["status"])

	w, out = s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "backend", out["source"])
}

func TestCountAboveLimit(t *testing.T) {
	s := newServer(t, nil)
	id := s.create(t)
	base := "/api/shipments/drafts/" + id + "/sections/shippingDetails"

	w, _ := s.do(t, http.MethodPut, base+"/count", gin.H{"group": "containers", "count": 1000000})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w, out := s.do(t, http.MethodGet, "/api/shipments/drafts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	shipping := out["document"].(map[string]any)["shippingDetails"].(map[string]any)
	assert.Empty(t, shipping["containers"])
}

func TestEntries(t *testing.T) {
	s := newServer(t, nil)
	id := s.create(t)
	base := "/api/shipments/drafts/" + id + "/sections/billingDetails"

	w, out := s.do(t, http.MethodPost, base+"/entries", gin.H{"group": "bills"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 0.0, out["index"])

	w, _ = s.do(t, http.MethodDelete, base+"/entries?group=bills&index=3", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, out = s.do(t, http.MethodDelete, base+"/entries?group=bills&index=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	billing := out["document"].(map[string]any)["billingDetails"].(map[string]any)
	assert.Empty(t, billing["bills"])

	w, _ = s.do(t, http.MethodDelete, base+"/entries?group=bills", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitLocked(t *testing.T) {
	s := newServer(t, nil)
	id := s.create(t)
	unlock, err := s.locker.Obtain(context.Background(), id, time.Minute)
	require.NoError(t, err)
	defer unlock(context.Background())

	w, _ := s.do(t, http.MethodPost, "/api/shipments/drafts/"+id+"/submit", nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

type brokenBackend struct {
	*repository.MemoryRepo
}

func (brokenBackend) Create(context.Context, map[string]any) (map[string]any, error) {
	return nil, errors.New("connection refused")
}

func TestSubmitBackendFailure(t *testing.T) {
	s := newServer(t, brokenBackend{repository.NewMemoryRepo()})
	id := s.create(t)
	w, out := s.do(t, http.MethodPost, "/api/shipments/drafts/"+id+"/submit", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, out["error"], "connection refused")
}

func TestUploadAndDownload(t *testing.T) {
	s := newServer(t, nil)
	id := s.create(t)
	base := "/api/shipments/drafts/" + id + "/sections/billingDetails"
	w, _ := s.do(t, http.MethodPost, base+"/entries", gin.H{"group": "bills"})
	require.Equal(t, http.StatusCreated, w.Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("path", "bills[0].billDocument"))
	fw, err := mw.CreateFormFile("file", "bill.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, base+"/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	url := out["url"].(string)

	w, doc := s.do(t, http.MethodGet, "/api/shipments/drafts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	bills := doc["document"].(map[string]any)["billingDetails"].(map[string]any)["bills"].([]any)
	assert.Equal(t, url, bills[0].(map[string]any)["billDocument"])

	get := httptest.NewRecorder()
	s.router.ServeHTTP(get, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "%PDF-1.4", get.Body.String())

	missing := httptest.NewRecorder()
	s.router.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/shipments/files/nope.pdf", nil))
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestDiscardAndClose(t *testing.T) {
	s := newServer(t, nil)
	id := s.create(t)
	base := "/api/shipments/drafts/" + id

	w, _ := s.do(t, http.MethodPost, base+"/close", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w, out := s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "local", out["source"])

	w, _ = s.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
