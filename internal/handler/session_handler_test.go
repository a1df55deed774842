package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/handler"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/router"
	"github.com/stemsi/examflow/internal/session"
	"github.com/stemsi/examflow/internal/timer"
	"github.com/stemsi/examflow/internal/upstream"
	"github.com/stemsi/examflow/internal/validator"
)

const apiTestContent = `{
  "parts": [
    {"nodes": [
      {"children": [{"question": {"kind": "FILL_IN", "number": 1}}]},
      {"children": [{"question": {"kind": "CHOICE", "number": 2,
        "options": [{"key":"A"},{"key":"B"}]}}]}
    ]}
  ]
}`

func init() {
	validator.Setup()
}

// newTestAPI stands up the full HTTP surface over a fake upstream.
func newTestAPI(t *testing.T) *gin.Engine {
	t.Helper()
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPatch: // submit
			json.NewEncoder(w).Encode(map[string]any{"status": "SUBMITTED"})
		default: // start
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "sub-1",
				"status":  "STARTED",
				"content": json.RawMessage(apiTestContent),
			})
		}
	}))
	t.Cleanup(upstreamSrv.Close)

	base := upstream.NewClient(upstreamSrv.URL, "id", zerolog.Nop(),
		upstream.WithHTTPClient(upstreamSrv.Client()))
	manager := session.NewManager(session.ManagerConfig{
		Base:       base,
		TimerStore: timer.NewMemoryStore(),
		Mirror:     session.NewMemoryMirror(),
		Guard:      session.NopGuard{},
		Log:        zerolog.Nop(),
	})
	t.Cleanup(manager.CloseAll)

	cfg := &config.Config{GinMode: gin.TestMode}
	return router.SetupRouter(&router.Handlers{
		Session: handler.NewSessionHandler(manager, zerolog.Nop()),
		Admin:   handler.NewAdminHandler(base),
		WS:      handler.NewWSHandler(manager, zerolog.Nop(), nil),
	}, cfg, zerolog.Nop())
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var env response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func createSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions", map[string]any{
		"mode":             "exam",
		"section_type":     "READING",
		"item_id":          "item-1",
		"duration_seconds": 3600,
	}, "tok")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var data struct {
		Session struct {
			SessionID string `json:"session_id"`
		} `json:"session"`
	}
	env := decodeEnvelope(t, w)
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &data))
	require.NotEmpty(t, data.Session.SessionID)
	return data.Session.SessionID
}

func TestCreateSessionRequiresBearer(t *testing.T) {
	r := newTestAPI(t)
	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions", map[string]any{
		"mode": "exam", "item_id": "item-1",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrBearerRequired, env.Error.Code)
}

func TestCreateSessionValidation(t *testing.T) {
	r := newTestAPI(t)
	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions", map[string]any{
		"mode": "practice", "item_id": "item-1",
	}, "tok")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrValidation, env.Error.Code)
	assert.Contains(t, env.Error.Fields, "mode")
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	r := newTestAPI(t)
	id := createSession(t, r)

	// Snapshot readable.
	w := doJSON(t, r, http.MethodGet, "/api/v1/sessions/"+id, nil, "tok")
	assert.Equal(t, http.StatusOK, w.Code)

	// Answer a fill-in.
	w = doJSON(t, r, http.MethodPut, "/api/v1/sessions/"+id+"/answers", map[string]any{
		"question": 1, "op": "text", "value": "ferry",
	}, "tok")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A wrong-kind operation maps to the invalid-operation code.
	w = doJSON(t, r, http.MethodPut, "/api/v1/sessions/"+id+"/answers", map[string]any{
		"question": 2, "op": "text", "value": "ferry",
	}, "tok")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrInvalidAnswerOp, env.Error.Code)

	// Unknown question number.
	w = doJSON(t, r, http.MethodPut, "/api/v1/sessions/"+id+"/answers", map[string]any{
		"question": 99, "op": "text", "value": "x",
	}, "tok")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Navigate.
	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+id+"/navigate", map[string]any{
		"op": "next",
	}, "tok")
	assert.Equal(t, http.StatusOK, w.Code)

	// Submit.
	w = doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+id+"/submit", map[string]any{
		"force": false,
	}, "tok")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSubmitWithoutAnswersOverHTTP(t *testing.T) {
	r := newTestAPI(t)
	id := createSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+id+"/submit", map[string]any{
		"force": false,
	}, "tok")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrNoAnswers, env.Error.Code)
}

func TestUnknownSessionID(t *testing.T) {
	r := newTestAPI(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/sessions/not-a-uuid", nil, "tok")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/sessions/5e0e13a2-4b9d-4f4c-9f62-000000000000", nil, "tok")
	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrSessionNotFound, env.Error.Code)
}

func TestDeleteSession(t *testing.T) {
	r := newTestAPI(t)
	id := createSession(t, r)

	w := doJSON(t, r, http.MethodDelete, "/api/v1/sessions/"+id, nil, "tok")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/sessions/"+id, nil, "tok")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResponsesCarryRequestID(t *testing.T) {
	r := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "req-42", env.Metadata.RequestID)
}
