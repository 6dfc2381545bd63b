package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
	"github.com/Abhishekhack2909/StreamVerse/internal/identity"
	"github.com/Abhishekhack2909/StreamVerse/internal/record"
	"github.com/Abhishekhack2909/StreamVerse/internal/registry"
)

type testEnv struct {
	engine   *gin.Engine
	registry *registry.Registry
	records  *record.GormStore
	resolver *identity.JWTResolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	records, err := record.NewGormStore(db)
	require.NoError(t, err)

	resolver, err := identity.NewJWTResolver("test-secret", "streamverse")
	require.NoError(t, err)

	reg := registry.New()
	h := NewHTTPHandler(reg, records, []string{"stun:stun.example.com:3478"}, NewAuthMiddleware(resolver))

	engine := gin.New()
	h.RegisterRoutes(engine)

	return &testEnv{engine: engine, registry: reg, records: records, resolver: resolver}
}

func (e *testEnv) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Success)
	return body.Data
}

func (e *testEnv) doJSON(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestHTTPHandler_CreateSession(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	token, err := env.resolver.Sign("alice", "Alice")
	req.NoError(err)

	w := env.doJSON(t, http.MethodPost, "/api/v1/sessions", token,
		`{"title":"my stream","mode":"broadcast"}`)
	req.Equal(http.StatusCreated, w.Code)

	data := decodeData(t, w)
	req.Equal("alice", data["owner_id"])
	req.Equal("my stream", data["title"])
	req.Equal(true, data["is_live"])
}

func TestHTTPHandler_CreateSession_Requires_Auth(t *testing.T) {
	env := newTestEnv(t)
	w := env.doJSON(t, http.MethodPost, "/api/v1/sessions", "",
		`{"title":"my stream","mode":"broadcast"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHTTPHandler_CreateSession_Rejects_Bad_Mode(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	token, err := env.resolver.Sign("alice", "Alice")
	req.NoError(err)

	w := env.doJSON(t, http.MethodPost, "/api/v1/sessions", token,
		`{"title":"my stream","mode":"theatre"}`)
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestHTTPHandler_ListSessions_Live_Only(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.records.CreateRecord(ctx, "alice", "live one", "broadcast")
	req.NoError(err)

	ended, err := env.records.CreateRecord(ctx, "bob", "finished", "mesh")
	req.NoError(err)
	req.NoError(env.records.MarkEnded(ctx, ended))

	w := env.do(t, http.MethodGet, "/api/v1/sessions", "")
	req.Equal(http.StatusOK, w.Code)

	data := decodeData(t, w)
	req.Equal(float64(1), data["count"])
}

func TestHTTPHandler_GetSession(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	id, err := env.records.CreateRecord(context.Background(), "alice", "my stream", "broadcast")
	req.NoError(err)

	w := env.do(t, http.MethodGet, "/api/v1/sessions/"+id, "")
	req.Equal(http.StatusOK, w.Code)

	data := decodeData(t, w)
	req.Equal("alice", data["owner_id"])
	req.Equal("my stream", data["title"])
	req.Equal(true, data["is_live"])
}

func TestHTTPHandler_GetSession_Not_Found(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/sessions/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHTTPHandler_GetParticipants(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	id, err := env.registry.CreateSession(domain.ModeMesh, "alice")
	req.NoError(err)
	_, err = env.registry.Join(id, domain.Participant{
		ID:          "p-1",
		DisplayName: "Alice",
		Role:        domain.RoleHost,
		ChannelID:   "ch-1",
	})
	req.NoError(err)

	w := env.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/participants", "")
	req.Equal(http.StatusOK, w.Code)

	data := decodeData(t, w)
	req.Equal("mesh", data["mode"])
	participants := data["participants"].([]interface{})
	req.Len(participants, 1)
}

func TestHTTPHandler_GetParticipants_Ended_Session(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	id, err := env.registry.CreateSession(domain.ModeMesh, "alice")
	req.NoError(err)
	req.NoError(env.registry.End(id, "alice"))

	w := env.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/participants", "")
	req.Equal(http.StatusGone, w.Code)
}

func TestHTTPHandler_ICEServers_Require_Auth(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/ice-servers", "")
	req.Equal(http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/ice-servers", "garbage-token")
	req.Equal(http.StatusUnauthorized, w.Code)

	token, err := env.resolver.Sign("user-1", "Alice")
	req.NoError(err)

	w = env.do(t, http.MethodGet, "/api/v1/ice-servers", token)
	req.Equal(http.StatusOK, w.Code)

	data := decodeData(t, w)
	servers := data["ice_servers"].([]interface{})
	req.Len(servers, 1)
}
