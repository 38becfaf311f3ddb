package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasmilici/domux-backend/internal/pkg/apperr"
	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/requestdata"
	"github.com/thomasmilici/domux-backend/internal/services"
	"github.com/thomasmilici/domux-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

// asUser injects a verified identity the way the auth middleware does.
func asUser(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := &requestdata.RequestData{UserID: uid, DisplayName: "Thomas Milici"}
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

// ---- service fakes ----

type fakeSessionService struct {
	session *types.ProjectSession
	err     error
}

func (f *fakeSessionService) ok() (*types.ProjectSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeSessionService) Create(ctx context.Context, user types.User) (*types.ProjectSession, error) {
	return f.ok()
}

func (f *fakeSessionService) Get(ctx context.Context, user types.User, id string) (*types.ProjectSession, error) {
	return f.ok()
}

func (f *fakeSessionService) Subscribe(ctx context.Context, user types.User, id string) (<-chan *types.ProjectSession, error) {
	ch := make(chan *types.ProjectSession)
	close(ch)
	return ch, f.err
}

func (f *fakeSessionService) ListByUser(ctx context.Context, user types.User) ([]*types.ProjectSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*types.ProjectSession{f.session}, nil
}

func (f *fakeSessionService) AddDescriptionItem(ctx context.Context, user types.User, id, text string) (*types.ProjectSession, error) {
	return f.ok()
}

func (f *fakeSessionService) EditDescriptionItem(ctx context.Context, user types.User, id string, index int, text string) (*types.ProjectSession, error) {
	return f.ok()
}

func (f *fakeSessionService) RemoveDescriptionItem(ctx context.Context, user types.User, id string, index int) (*types.ProjectSession, error) {
	return f.ok()
}

func (f *fakeSessionService) UpdateCommittente(ctx context.Context, user types.User, id string, cm types.Committente) (*types.ProjectSession, error) {
	return f.ok()
}

func (f *fakeSessionService) UpdateLocation(ctx context.Context, user types.User, id, location string) (*types.ProjectSession, error) {
	return f.ok()
}

func (f *fakeSessionService) Update(ctx context.Context, user types.User, id string, upd services.SessionUpdate) (*types.ProjectSession, error) {
	return f.ok()
}

func (f *fakeSessionService) Pause(ctx context.Context, user types.User, id, note string) error {
	return f.err
}

func (f *fakeSessionService) Resume(ctx context.Context, user types.User, id string) (*types.ProjectSession, error) {
	return f.ok()
}

func (f *fakeSessionService) NewRevision(ctx context.Context, user types.User, project *types.Project, parentSessionID string) (*types.ProjectSession, error) {
	return f.ok()
}

type fakeFinalizeService struct {
	title  string
	result *types.GenerationResult
	err    error

	lastInput services.FinalizeInput
}

func (f *fakeFinalizeService) SuggestTitle(ctx context.Context, user types.User, sessionID string, items []types.ComputoItem) (string, error) {
	return f.title, f.err
}

func (f *fakeFinalizeService) Finalize(ctx context.Context, user types.User, sessionID string, in services.FinalizeInput) (*types.GenerationResult, error) {
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeFinalizeService) Run(ctx context.Context, user types.User, sessionID string, in services.FinalizeInput, confirmer services.TitleConfirmer) (*types.GenerationResult, error) {
	return f.Finalize(ctx, user, sessionID, in)
}

func (f *fakeFinalizeService) Rebuild(ctx context.Context, user types.User, view services.SessionView, items []types.ComputoItem, report string, prev types.CertificationMetadata, beforeImage, afterImage []byte) ([]byte, *types.CertificationMetadata, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	meta := prev
	meta.Hash = "newhash"
	return []byte("rebuilt"), &meta, nil
}

// ---- tests ----

func testSession() *types.ProjectSession {
	return &types.ProjectSession{
		ID:     "sess-1",
		UserID: "user-1",
		Status: types.SessionStatusOpen,
	}
}

func newSessionRouter(t *testing.T, svc services.SessionService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewSessionHandler(testLogger(t), svc, services.NewImageService(testLogger(t)))
	r := gin.New()
	r.Use(asUser("user-1"))
	r.POST("/api/sessions", h.Create)
	r.GET("/api/sessions/:id", h.Get)
	r.POST("/api/sessions/:id/description", h.AddDescription)
	return r
}

func TestSessionCreateEndpoint(t *testing.T) {
	r := newSessionRouter(t, &fakeSessionService{session: testSession()})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		Session types.ProjectSession `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "sess-1", body.Session.ID)
	assert.Equal(t, types.SessionStatusOpen, body.Session.Status)
}

func TestSessionAddDescriptionRequiresText(t *testing.T) {
	r := newSessionRouter(t, &fakeSessionService{session: testSession()})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/description", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperr.NotFound("sessione non trovata"), http.StatusNotFound},
		{apperr.Forbidden("la sessione appartiene a un altro utente"), http.StatusForbidden},
		{apperr.Conflict("la sessione è già stata finalizzata"), http.StatusConflict},
		{apperr.Validation("indice della descrizione non valido"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		r := newSessionRouter(t, &fakeSessionService{err: tc.err})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, "kind %s", apperr.KindOf(tc.err))

		var envelope ErrorEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		assert.Equal(t, apperr.UserMessage(tc.err), envelope.Error.Message)
	}
}

func TestSuggestTitleEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewFinalizeHandler(testLogger(t), &fakeFinalizeService{title: "Ristrutturazione bagno Sig. Rossi - 14/03/2026"})
	r := gin.New()
	r.Use(asUser("user-1"))
	r.POST("/api/sessions/:id/finalize/title", h.SuggestTitle)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/finalize/title", bytes.NewReader([]byte(`{"computoItems":[]}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ristrutturazione bagno Sig. Rossi - 14/03/2026")
}

func TestFinalizeEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeFinalizeService{result: &types.GenerationResult{
		ProjectID:      "proj-1",
		PDFDownloadURL: "https://cdn.example/projects/user-1/sess-1/doc.pdf",
		ArtifactBytes:  []byte("%PDF-"),
		Metadata:       &types.CertificationMetadata{ReadableID: "CM-2026-03-14-A1B2", Hash: "abc"},
	}}
	h := NewFinalizeHandler(testLogger(t), svc)
	r := gin.New()
	r.Use(asUser("user-1"))
	r.POST("/api/sessions/:id/finalize", h.Finalize)

	payload := `{"projectName":"Lavori Sig. Rossi - 14/03/2026","computoItems":[{"id":1,"importo":100}],"reportText":"ok"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/finalize", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lavori Sig. Rossi - 14/03/2026", svc.lastInput.ConfirmedTitle)
	assert.Contains(t, w.Body.String(), "proj-1")
	assert.Contains(t, w.Body.String(), "CM-2026-03-14-A1B2")
}

func TestFinalizeEndpointRequiresProjectName(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewFinalizeHandler(testLogger(t), &fakeFinalizeService{})
	r := gin.New()
	r.Use(asUser("user-1"))
	r.POST("/api/sessions/:id/finalize", h.Finalize)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/finalize", bytes.NewReader([]byte(`{"computoItems":[]}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFinalizeTimeoutMapsToGatewayTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeFinalizeService{err: apperr.WithPrefix("salvataggio fallito", apperr.Timeout("upload_pdf"))}
	h := NewFinalizeHandler(testLogger(t), svc)
	r := gin.New()
	r.Use(asUser("user-1"))
	r.POST("/api/sessions/:id/finalize", h.Finalize)

	payload := `{"projectName":"Lavori","computoItems":[{"id":1}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/sess-1/finalize", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "salvataggio fallito")
	assert.Contains(t, w.Body.String(), "troppo tempo")
}
