package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-dumper-go/internal/config"
	"chat-dumper-go/internal/hub"
	"chat-dumper-go/internal/repository"
	"chat-dumper-go/internal/service"
	"chat-dumper-go/pkg/storage"
	"chat-dumper-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	infoURL      = "https://beta.character.ai/chat/character/info/"
	historiesURL = "https://beta.character.ai/chat/character/histories/"
	publicURL    = "http://dumper.test"
)

const ariaInfo = `{"character":{"name":"Aria"}}`

const ariaHistories = `{"histories":[{"msgs":[
	{"text":"Hi Bob","display_name":"Aria","src":{"name":"Aria","is_human":false},"tgt":{"name":"Bob","is_human":true,"user":{"username":"bob42","first_name":"Bob","name":"Bob"}}},
	{"text":"hey","display_name":"Bob","src":{"name":"Bob","is_human":true,"user":{"username":"bob42","first_name":"Bob","name":"Bob"}},"tgt":{"name":"Aria","is_human":false}}
]}]}`

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	cache := repository.NewMemoryPayloadCache(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	wsHub := hub.NewHub()
	go wsHub.Run(ctx)

	exportCfg := config.ExportConfig{AnchorID: "injected-chat-dl-link", HeaderClass: "home-sec-header", HeaderText: "Your Past Conversations with"}
	interceptCfg := config.InterceptConfig{InfoURL: infoURL, HistoriesURL: historiesURL, Mode: "sync"}

	exporter := service.NewExportService(cache, store, service.ExportOptions{Notifier: wsHub})
	interceptor := service.NewInterceptService(interceptCfg, cache, exporter, nil)
	jwtManager := token.NewJWTManager("test-secret", 1)

	r := gin.New()
	RegisterRoutes(r, jwtManager, Handlers{
		Session:   NewSessionHandler(jwtManager, exporter, publicURL),
		Intercept: NewInterceptHandler(interceptor),
		Export:    NewExportHandler(exporter, wsHub),
		Shim:      NewShimHandler(publicURL, interceptCfg, exportCfg),
	})
	return r
}

func do(r *gin.Engine, method, target, tok, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func newSession(t *testing.T, r *gin.Engine) (string, string) {
	t.Helper()
	w := do(r, http.MethodPost, "/api/v1/sessions", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		SessionID string `json:"sessionId"`
		Token     string `json:"token"`
		ShimURL   string `json:"shimUrl"`
	}
	decode(t, w, &data)
	require.NotEmpty(t, data.Token)
	assert.True(t, strings.HasPrefix(data.ShimURL, publicURL+"/shim.js?token="))
	return data.SessionID, data.Token
}

func intercept(t *testing.T, r *gin.Engine, tok, finalURL, body string) service.Outcome {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"finalUrl": finalURL, "data": json.RawMessage(body)})
	require.NoError(t, err)
	w := do(r, http.MethodPost, "/api/v1/intercept", tok, string(payload))
	require.Equal(t, http.StatusOK, w.Code)
	var out service.Outcome
	decode(t, w, &out)
	return out
}

func TestRoutes_Healthz(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_RequireSession(t *testing.T) {
	r := newTestRouter(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/intercept"},
		{http.MethodGet, "/api/v1/exports"},
		{http.MethodGet, "/api/v1/exports/Aria"},
		{http.MethodGet, "/api/v1/ws"},
		{http.MethodDelete, "/api/v1/sessions"},
		{http.MethodGet, "/shim.js"},
	} {
		w := do(r, tc.method, tc.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.path)
	}

	w := do(r, http.MethodGet, "/api/v1/exports", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutes_InterceptToDownload(t *testing.T) {
	r := newTestRouter(t)
	_, tok := newSession(t, r)

	out := intercept(t, r, tok, infoURL, ariaInfo)
	assert.Equal(t, service.StatusCached, out.Status)
	assert.False(t, out.Complete)

	out = intercept(t, r, tok, historiesURL, ariaHistories)
	assert.True(t, out.Complete)
	assert.True(t, out.Exporting)

	w := do(r, http.MethodGet, "/api/v1/exports", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Entities []service.ExportStatus `json:"entities"`
	}
	decode(t, w, &list)
	require.Len(t, list.Entities, 1)
	assert.Equal(t, "Aria", list.Entities[0].Entity)
	assert.True(t, list.Entities[0].Complete)

	// 下载链接由页面上的 <a> 打开，令牌放在查询参数里
	w = do(r, http.MethodGet, "/api/v1/exports/Aria?token="+tok, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=Aria.json", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Contains(t, doc, "info")
	assert.Contains(t, doc, "histories")
	assert.NotContains(t, w.Body.String(), "Bob")
}

func TestRoutes_DownloadEntityNamesNeedingEscapes(t *testing.T) {
	r := newTestRouter(t)
	_, tok := newSession(t, r)

	for _, name := range []string{"AC/DC", "ws", "Sir Kay", "A+B/C"} {
		info, err := json.Marshal(map[string]any{"character": map[string]string{"name": name}})
		require.NoError(t, err)
		quoted, err := json.Marshal(name)
		require.NoError(t, err)
		histories := strings.ReplaceAll(ariaHistories, `"Aria"`, string(quoted))

		intercept(t, r, tok, infoURL, string(info))
		out := intercept(t, r, tok, historiesURL, histories)
		require.Equal(t, name, out.Entity)
		require.True(t, out.Exporting, name)

		w := do(r, http.MethodGet, service.DownloadPath(name)+"?token="+tok, "", "")
		require.Equal(t, http.StatusOK, w.Code, name)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"), name)
		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc), name)
		assert.JSONEq(t, `{"character":{"name":`+string(quoted)+`}}`, string(doc["info"]), name)
	}

	w := do(r, http.MethodGet, "/api/v1/exports", tok, "")
	var list struct {
		Entities []service.ExportStatus `json:"entities"`
	}
	decode(t, w, &list)
	require.Len(t, list.Entities, 4)
	for _, status := range list.Entities {
		assert.Equal(t, service.DownloadPath(status.Entity), status.DownloadURL)
	}
}

func TestRoutes_SessionsAreIsolated(t *testing.T) {
	r := newTestRouter(t)
	_, tokA := newSession(t, r)
	_, tokB := newSession(t, r)

	intercept(t, r, tokA, infoURL, ariaInfo)
	intercept(t, r, tokA, historiesURL, ariaHistories)

	w := do(r, http.MethodGet, "/api/v1/exports/Aria", tokB, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_InterceptAlwaysAnswersOK(t *testing.T) {
	r := newTestRouter(t)
	_, tok := newSession(t, r)

	w := do(r, http.MethodPost, "/api/v1/intercept", tok, `{not json`)
	require.Equal(t, http.StatusOK, w.Code)
	var out service.Outcome
	decode(t, w, &out)
	assert.Equal(t, service.StatusDropped, out.Status)

	out = intercept(t, r, tok, historiesURL, `{"histories":[]}`)
	assert.Equal(t, service.StatusDropped, out.Status)

	out = intercept(t, r, tok, "https://beta.character.ai/chat/user/", `{"user":{"username":"bob42"}}`)
	assert.Equal(t, service.StatusIgnored, out.Status)
}

func TestRoutes_DeleteSessionClearsExports(t *testing.T) {
	r := newTestRouter(t)
	_, tok := newSession(t, r)

	intercept(t, r, tok, infoURL, ariaInfo)
	intercept(t, r, tok, historiesURL, ariaHistories)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/exports/Aria", tok, "").Code)

	w := do(r, http.MethodDelete, "/api/v1/sessions", tok, "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/exports/Aria", tok, "").Code)
	w = do(r, http.MethodGet, "/api/v1/exports", tok, "")
	var list struct {
		Entities []service.ExportStatus `json:"entities"`
	}
	decode(t, w, &list)
	assert.Empty(t, list.Entities)
}

func TestRoutes_ShimEmbedsSessionAndSelectors(t *testing.T) {
	r := newTestRouter(t)
	_, tok := newSession(t, r)

	w := do(r, http.MethodGet, "/shim.js?token="+tok, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/javascript")

	body := w.Body.String()
	assert.Contains(t, body, `var TOKEN = "`+tok+`"`)
	assert.Contains(t, body, `var ANCHOR_ID = "injected-chat-dl-link"`)
	assert.Contains(t, body, `var HEADER_CLASS = "home-sec-header"`)
	assert.Contains(t, body, `var HEADER_TEXT = "Your Past Conversations with"`)
	assert.Contains(t, body, `"https://beta.character.ai/chat/character/info/"`)
	assert.Contains(t, body, `var BASE = "http://dumper.test"`)
	assert.Contains(t, body, `"/api/v1/ws?token="`)
	assert.Contains(t, body, `ws.onopen = replay`)
}
