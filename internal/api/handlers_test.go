package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pratham2994/OmniCompiler/internal/predict"
	"github.com/Pratham2994/OmniCompiler/internal/sandbox"
	"github.com/Pratham2994/OmniCompiler/internal/session"
	"github.com/Pratham2994/OmniCompiler/internal/supervisor"
)

func testAPI() (*API, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	registry := session.NewRegistry()
	launcher := &sandbox.Launcher{UseDocker: false, ImagePrefix: "omni-runner"}
	a := &API{
		Registry: registry,
		Launcher: launcher,
		Supervisor: &supervisor.Supervisor{
			Launcher: launcher,
			Registry: registry,
			Opts: supervisor.Options{
				WallClock:      5 * time.Second,
				KillGrace:      time.Second,
				CommandTimeout: 2 * time.Second,
			},
		},
		Predictor:        &predict.Predictor{},
		CreateRatePerMin: 1000,
		PrepareTimeout:   5 * time.Second,
	}
	return a, NewRouter(a)
}

func postRun(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func runBody(overrides map[string]any) map[string]any {
	body := map[string]any{
		"lang":  "python",
		"entry": "m.py",
		"files": []map[string]string{{"name": "m.py", "content": "print('hi')\n"}},
		"mode":  "run",
	}
	for k, v := range overrides {
		body[k] = v
	}
	return body
}

func TestCreateRunHappyPath(t *testing.T) {
	a, router := testAPI()
	w := postRun(t, router, runBody(nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp runResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Contains(t, resp.WSURL, "/ws/run/"+resp.SessionID)
	assert.True(t, strings.HasPrefix(resp.WSURL, "ws://"))
	assert.Equal(t, 1, a.Registry.Len())
}

func TestCreateRunValidation(t *testing.T) {
	_, router := testAPI()

	cases := []struct {
		name     string
		body     map[string]any
		wantText string
	}{
		{
			"traversal filename",
			runBody(map[string]any{"files": []map[string]string{
				{"name": "../etc/passwd", "content": "x"},
				{"name": "m.py", "content": "x"},
			}}),
			"invalid filename",
		},
		{
			"oversized file",
			runBody(map[string]any{"files": []map[string]string{
				{"name": "m.py", "content": strings.Repeat("a", 300_000)},
			}}),
			"file too large",
		},
		{
			"too many files",
			runBody(map[string]any{"files": manyFiles(51)}),
			"too many files",
		},
		{
			"entry missing",
			runBody(map[string]any{"entry": "other.py"}),
			"entry file not found",
		},
		{
			"unsupported language",
			runBody(map[string]any{"lang": "cobol"}),
			"unsupported language",
		},
		{
			"unsupported mode",
			runBody(map[string]any{"mode": "profile"}),
			"unsupported mode",
		},
		{
			"breakpoint line zero",
			runBody(map[string]any{"mode": "run", "breakpoints": []map[string]any{{"file": "m.py", "line": 0}}}),
			"invalid breakpoint line",
		},
		{
			"breakpoint bad file",
			runBody(map[string]any{"breakpoints": []map[string]any{{"file": "../x.py", "line": 1}}}),
			"invalid breakpoint file",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := postRun(t, router, c.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), c.wantText)
		})
	}
}

func manyFiles(n int) []map[string]string {
	files := make([]map[string]string, 0, n)
	files = append(files, map[string]string{"name": "m.py", "content": "x"})
	for i := 1; i < n; i++ {
		files = append(files, map[string]string{"name": "f" + strings.Repeat("a", i%20) + ".py", "content": "x"})
	}
	return files
}

func TestAttachUnknownSessionID(t *testing.T) {
	_, router := testAPI()
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/run/does-not-exist"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	var frame map[string]any
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, "err", frame["type"])
	assert.Equal(t, "invalid session_id", frame["data"])
}

func TestSecondAttachRejected(t *testing.T) {
	a, router := testAPI()
	sess := a.Registry.Create(&session.Session{Lang: session.LangPython, Mode: session.ModeRun})
	_, err := a.Registry.Claim(sess.ID)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/run/" + sess.ID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	var frame map[string]any
	require.NoError(t, ws.ReadJSON(&frame))
	assert.Equal(t, "invalid session_id", frame["data"])
}

func TestDetectEndpoint(t *testing.T) {
	_, router := testAPI()
	payload := `{"code":"def main():\n    print('x')\n\nif __name__ == '__main__':\n    main()\n"}`
	req := httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lang":"python"`)
}

func TestPredictNotConfigured(t *testing.T) {
	_, router := testAPI()
	payload := `{"lang":"python","file":{"name":"m.py","content":"print(1)"}}`
	req := httptest.NewRequest(http.MethodPost, "/breakpoints/predict", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestInsightNotConfigured(t *testing.T) {
	_, router := testAPI()
	req := httptest.NewRequest(http.MethodPost, "/insight", strings.NewReader(`{"question":"why"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	_, router := testAPI()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
