package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emicklei/go-restful/v3"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acwooding/dmp-test-ci/internal/golden"
	"github.com/acwooding/dmp-test-ci/internal/log"
	runSvc "github.com/acwooding/dmp-test-ci/internal/run/service"
	"github.com/acwooding/dmp-test-ci/internal/scenario"
	"github.com/acwooding/dmp-test-ci/internal/tracker"
)

type harness struct {
	server  *httptest.Server
	store   *golden.Store
	runs    *runSvc.RunService
	release chan struct{}
}

// newHarness serves the API with an executor that emits two events and then
// waits for release before reporting success.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   golden.NewStore(t.TempDir()),
		release: make(chan struct{}),
	}
	exec := func(ctx context.Context, run tracker.Run, sink scenario.EventSink) (*scenario.Report, error) {
		sink.Publish(scenario.Event{Type: scenario.EventRunStarted, Suite: "Cord19 Canvas Tests"})
		sink.Publish(scenario.Event{Type: scenario.EventScenarioStarted, Scenario: "zoom functionality"})
		select {
		case <-h.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &scenario.Report{Suite: "Cord19 Canvas Tests", Passed: 1}, nil
	}
	logger := log.NewWithWriter(io.Discard)
	h.runs = runSvc.New(tracker.NewInMemoryRunTracker(), exec, logger)

	container := restful.NewContainer()
	ws := new(restful.WebService)
	ws.Path("/api/v1").Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	RegisterRoutes(ws, NewHandler(h.runs, h.store, logger))
	container.Add(ws)

	h.server = httptest.NewServer(container)
	t.Cleanup(func() {
		h.server.Close()
		_ = h.runs.Shutdown(context.Background())
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", restful.MIME_JSON)
	}
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (h *harness) createRun(t *testing.T, body string) tracker.Run {
	t.Helper()
	resp, data := h.do(t, http.MethodPost, "/api/v1/runs", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))
	var run tracker.Run
	require.NoError(t, json.Unmarshal(data, &run))
	return run
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGetVersion(t *testing.T) {
	h := newHarness(t)
	resp, data := h.do(t, http.MethodGet, "/api/v1/version", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info map[string]string
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, "v1", info["APIVersion"])
}

func TestCreateGetAndListRuns(t *testing.T) {
	h := newHarness(t)

	run := h.createRun(t, `{"grep":"zoom"}`)
	assert.Equal(t, "zoom", run.Grep)
	assert.Equal(t, tracker.TriggerAPI, run.Trigger)

	resp, data := h.do(t, http.MethodGet, "/api/v1/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got tracker.Run
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, run.ID, got.ID)

	close(h.release)
	require.Eventually(t, func() bool {
		r, err := h.runs.Get(run.ID)
		return err == nil && r.State == tracker.StatePassed
	}, 2*time.Second, 5*time.Millisecond)

	resp, data = h.do(t, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []tracker.Run
	require.NoError(t, json.Unmarshal(data, &runs))
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Report)
	assert.Equal(t, 1, runs[0].Report.Passed)
}

func TestCreateRunWithoutBody(t *testing.T) {
	h := newHarness(t)
	run := h.createRun(t, "")
	assert.Empty(t, run.Grep)
}

func TestCreateRunBadBody(t *testing.T) {
	h := newHarness(t)
	resp, data := h.do(t, http.MethodPost, "/api/v1/runs", `{"grep":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, http.StatusBadRequest, e.Code)
}

func TestCreateRunAfterShutdown(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runs.Shutdown(context.Background()))
	resp, _ := h.do(t, http.MethodPost, "/api/v1/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetRunNotFound(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, http.MethodGet, "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/runs/missing/events", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBaselines(t *testing.T) {
	h := newHarness(t)

	resp, data := h.do(t, http.MethodGet, "/api/v1/baselines", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(data))

	img := pngBytes(t)
	require.NoError(t, h.store.Save(scenario.BaselineInitialState, img))

	resp, data = h.do(t, http.MethodGet, "/api/v1/baselines", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []golden.Baseline
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, scenario.BaselineInitialState, list[0].Name)

	resp, data = h.do(t, http.MethodGet, "/api/v1/baselines/initial-state.png", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, img, data)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/baselines/after-pan.png", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/baselines/.hidden", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamEvents(t *testing.T) {
	h := newHarness(t)
	run := h.createRun(t, "")

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/v1/runs/" + run.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first, second scenario.Event
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, scenario.EventRunStarted, first.Type)
	assert.Equal(t, "zoom functionality", second.Scenario)

	close(h.release)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
