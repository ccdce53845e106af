package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apkforge/apkforge/pkg/interfaces"
	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/pipeline"
	"github.com/apkforge/apkforge/pkg/server"
	"github.com/apkforge/apkforge/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner fabricates tool side effects so full builds run in-process
type fakeRunner struct{ t *testing.T }

func (r *fakeRunner) Run(ctx context.Context, command string, args []string, workDir string, onLine interfaces.LineCallback) error {
	display := command + " " + strings.Join(args, " ")

	write := func(rel, content string) {
		path := filepath.Join(workDir, rel)
		require.NoError(r.t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(r.t, os.WriteFile(path, []byte(content), 0644))
	}

	switch {
	case strings.HasPrefix(display, "git clone"):
		write("package.json", `{"name":"acme","scripts":{"build":"vite build"}}`)
	case strings.Contains(display, "run build"):
		write("dist/index.html", "<html><head></head><body></body></html>")
	case strings.Contains(display, "cap add android"):
		write("android/gradlew", "#!/bin/sh\n")
		write("android/app/build.gradle", "android {\n    defaultConfig {\n        versionCode 1\n        versionName \"1.0\"\n    }\n}\n")
		write("android/app/src/main/AndroidManifest.xml", `<manifest><application><activity></activity></application></manifest>`)
		write("android/app/src/main/res/values/styles.xml", `<resources><style name="AppTheme.NoActionBar" parent="Theme.AppCompat.DayNight.NoActionBar"></style></resources>`)
	case strings.Contains(display, "assembleDebug"):
		write("app/build/outputs/apk/debug/app-debug.apk", "apk-bytes")
	}

	if onLine != nil {
		onLine("ok", interfaces.StreamStdout)
	}
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	publicDir := filepath.Join(t.TempDir(), "public")
	ctrl := pipeline.NewController(pipeline.Config{
		WorkspaceDir: filepath.Join(t.TempDir(), "workspace"),
		PublicDir:    publicDir,
	}, &fakeRunner{t: t}, nil)

	srv := server.New(server.Config{PublicDir: publicDir}, ctrl, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, publicDir
}

func postBuild(t *testing.T, ts *httptest.Server, body string) []types.Event {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/build", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []types.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var event types.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestHandleBuild_StreamsEventsToTerminalResult(t *testing.T) {
	ts, publicDir := newTestServer(t)

	events := postBuild(t, ts, `{"repoUrl":"https://example.com/acme/app.git","appName":"Acme App","orientation":"landscape","versionName":"2.1"}`)
	require.NotEmpty(t, events)

	// Stages arrive in the fixed pipeline order
	var stages []types.Stage
	for _, e := range events {
		if e.Type == types.EventTypeStatus {
			stages = append(stages, e.Status)
		}
	}
	require.NotEmpty(t, stages)
	assert.Equal(t, types.StageCloning, stages[0])
	assert.Equal(t, types.StageSuccess, stages[len(stages)-1])

	last := events[len(events)-1]
	require.Equal(t, types.EventTypeResult, last.Type)
	require.NotNil(t, last.Result)
	assert.True(t, last.Result.Success)
	assert.Contains(t, last.Result.DownloadURL, "/downloads/Acme_App_2.1.apk")

	_, err := os.Stat(filepath.Join(publicDir, "Acme_App_2.1.apk"))
	assert.NoError(t, err)
}

func TestHandleBuild_LogsCallerRequestID(t *testing.T) {
	publicDir := filepath.Join(t.TempDir(), "public")
	ctrl := pipeline.NewController(pipeline.Config{
		WorkspaceDir: filepath.Join(t.TempDir(), "workspace"),
		PublicDir:    publicDir,
	}, &fakeRunner{t: t}, nil)

	var logBuf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "info", &logBuf)
	srv := server.New(server.Config{PublicDir: publicDir}, ctrl, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	httpReq, err := http.NewRequest(http.MethodPost, ts.URL+"/api/build",
		strings.NewReader(`{"repoUrl":"https://example.com/acme/app.git"}`))
	require.NoError(t, err)
	httpReq.Header.Set("X-Request-ID", "req_caller42")

	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	// Drain the NDJSON stream so the handler (and its post-build log line)
	// has finished before asserting on the log buffer.
	_, err = io.Copy(io.Discard, resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The post-build log line carries the caller's id, not a fallback
	assert.Contains(t, logBuf.String(), "req_caller42")
	assert.NotContains(t, logBuf.String(), "unknown-request")
}

func TestHandleBuild_RejectsMissingRepoURL(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/build", "application/json", strings.NewReader(`{"appName":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleBuild_RejectsMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/build", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleBuild_MethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/build")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDownloads_ServesPublishedArtifacts(t *testing.T) {
	ts, publicDir := newTestServer(t)

	require.NoError(t, os.MkdirAll(publicDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(publicDir, "Acme_1.0.apk"), []byte("apk"), 0644))

	resp, err := http.Get(ts.URL + "/downloads/Acme_1.0.apk")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleBuildWS_StreamsEvents(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/build/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(types.BuildRequest{
		RepoURL: "https://example.com/acme/app.git",
		AppName: "Acme App",
	}))

	var sawResult bool
	for {
		var event types.Event
		if err := conn.ReadJSON(&event); err != nil {
			break
		}
		if event.Type == types.EventTypeResult {
			sawResult = true
			require.NotNil(t, event.Result)
			assert.True(t, event.Result.Success)
		}
	}
	assert.True(t, sawResult)
}

func TestHandleBuildWS_InvalidRequest(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/build/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"appName": "x"}))

	var event types.Event
	require.NoError(t, conn.ReadJSON(&event))
	require.Equal(t, types.EventTypeResult, event.Type)
	assert.False(t, event.Result.Success)
}
