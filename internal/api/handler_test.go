package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-drone-routes/internal/dispatch"
	"github.com/mr1hm/go-drone-routes/internal/mapview"
	"github.com/mr1hm/go-drone-routes/internal/models"
	"github.com/mr1hm/go-drone-routes/internal/repository"
	"github.com/mr1hm/go-drone-routes/internal/stream"
)

const twoDeliveryPlan = `{
	"dronePaths": [{
		"droneId": "D1",
		"deliveries": [
			{"deliveryId": 7, "flightPath": [{"lat": 55.944, "lng": -3.188}, {"lat": 55.946, "lng": -3.186}]},
			{"flightPath": [{"lat": 55.946, "lng": -3.186}, {"lat": 55.945, "lng": -3.184}]}
		]
	}],
	"totalCost": 12.5,
	"totalMoves": 40
}`

// mockRepo implements repository.RunRepository for testing
type mockRepo struct {
	runs []models.Run
	err  error
}

func (m *mockRepo) Add(ctx context.Context, r *models.Run) error {
	m.runs = append(m.runs, *r)
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*models.Run, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockRepo) ListRuns(ctx context.Context, opts repository.Filter) ([]models.Run, error) {
	if m.err != nil {
		return nil, m.err
	}
	results := m.runs

	// Apply outcome filter
	if opts.Outcome != nil {
		var filtered []models.Run
		for _, r := range results {
			if r.Outcome == *opts.Outcome {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	// Apply limit
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	return results, nil
}

type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) RenderPNG(w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("\x89PNG\r\n\x1a\n"))
	return err
}

type fakeDispatcher struct {
	err error
}

func (f *fakeDispatcher) Submit(ctx context.Context, input string) (*dispatch.Outcome, error) {
	return nil, f.err
}

type testEnv struct {
	router      *gin.Engine
	view        *mapview.MapView
	repo        *mockRepo
	broadcaster *stream.Broadcaster
}

func newTestView() *mapview.MapView {
	return mapview.New(mapview.Options{
		Tiles:   mapview.TileLayer{URLTemplate: "https://tile.openstreetmap.org/{z}/{x}/{y}.png", Attribution: "© OpenStreetMap contributors"},
		Center:  models.GeoPoint{Lat: 55.94468066708487, Lng: -3.1863580788986368},
		Zoom:    15,
		MaxZoom: 18,
		Width:   1024,
		Height:  768,
	})
}

// setupTestRouter wires a handler whose orchestrator talks to planner.
func setupTestRouter(t *testing.T, planner http.HandlerFunc) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(planner)
	t.Cleanup(srv.Close)

	env := &testEnv{
		view:        newTestView(),
		repo:        &mockRepo{},
		broadcaster: stream.NewBroadcaster(),
	}
	orch := dispatch.NewOrchestrator(dispatch.NewClient(srv.URL, 5*time.Second), env.view, nil, env.broadcaster)
	env.router = newRouter(NewHandler(orch, env.view, &fakeRenderer{}, env.repo, env.broadcaster))
	return env
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h.RegisterRoutes(router)
	return router
}

func respondWith(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func postDispatch(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDispatch_Success(t *testing.T) {
	env := setupTestRouter(t, respondWith(http.StatusOK, twoDeliveryPlan))

	w := postDispatch(env.router, `{"orders":[]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		RunID    string `json:"run_id"`
		Result   string `json:"result"`
		Overlays struct {
			Type     string           `json:"type"`
			Features []map[string]any `json:"features"`
		} `json:"overlays"`
		Viewport *models.Viewport    `json:"viewport"`
		Stats    mapview.RenderStats `json:"stats"`
		Summary  PlanSummary         `json:"summary"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.RunID == "" {
		t.Error("expected a run id")
	}
	if !strings.Contains(resp.Result, "\n  \"dronePaths\"") {
		t.Errorf("expected two-space indented echo, got %q", resp.Result)
	}
	if resp.Stats.Lines != 2 || resp.Stats.Markers != 4 {
		t.Errorf("expected 2 lines and 4 markers, got %+v", resp.Stats)
	}
	if len(resp.Overlays.Features) != 6 {
		t.Errorf("expected 6 features, got %d", len(resp.Overlays.Features))
	}
	if resp.Viewport == nil {
		t.Fatal("expected a viewport")
	}
	if resp.Viewport.Min.Lat != 55.944 || resp.Viewport.Max.Lng != -3.184 {
		t.Errorf("unexpected viewport %+v", resp.Viewport)
	}
	if resp.Summary.Deliveries != 2 || resp.Summary.TotalMoves == nil || *resp.Summary.TotalMoves != 40 {
		t.Errorf("unexpected summary %+v", resp.Summary)
	}
}

func TestDispatch_EmptyPlanHasNullViewport(t *testing.T) {
	env := setupTestRouter(t, respondWith(http.StatusOK, `{"dronePaths":[]}`))

	w := postDispatch(env.router, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if v, ok := resp["viewport"]; !ok || v != nil {
		t.Errorf("expected viewport null, got %v", v)
	}
	if env.view.View().Zoom != 15 {
		t.Errorf("expected view untouched, got zoom %d", env.view.View().Zoom)
	}
}

func TestDispatch_Errors(t *testing.T) {
	tests := []struct {
		name       string
		planner    http.HandlerFunc
		wantStatus int
		wantError  string
	}{
		{
			name:       "planner 500",
			planner:    respondWith(http.StatusInternalServerError, `oops`),
			wantStatus: http.StatusBadGateway,
			wantError:  "Error: 500 Internal Server Error",
		},
		{
			name:       "planner 400",
			planner:    respondWith(http.StatusBadRequest, `{}`),
			wantStatus: http.StatusBadGateway,
			wantError:  "Error: 400 Bad Request",
		},
		{
			name:       "not json",
			planner:    respondWith(http.StatusOK, `<html>`),
			wantStatus: http.StatusBadGateway,
			wantError:  "Error: error decoding response body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(t, tt.planner)

			w := postDispatch(env.router, "{}")
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var resp map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if !strings.HasPrefix(resp["error"], tt.wantError) {
				t.Errorf("expected error starting with %q, got %q", tt.wantError, resp["error"])
			}
			if env.view.Layers().Len() != 0 {
				t.Errorf("expected no overlays after failure, got %d", env.view.Layers().Len())
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestDispatch_BodyReadErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       io.Reader
		wantStatus int
		wantError  string
	}{
		{"too large", strings.NewReader(strings.Repeat("x", maxDispatchBytes+1)), http.StatusRequestEntityTooLarge, "dispatch body too large"},
		{"read failure", failingReader{}, http.StatusBadRequest, "failed to read dispatch body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &countingDispatcher{}
			router := newRouter(NewHandler(dispatcher, newTestView(), &fakeRenderer{}, &mockRepo{}, stream.NewBroadcaster()))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch", tt.body)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantError) {
				t.Errorf("expected error %q, got %s", tt.wantError, w.Body.String())
			}
			if dispatcher.calls != 0 {
				t.Errorf("expected no submission, got %d", dispatcher.calls)
			}
		})
	}
}

type countingDispatcher struct {
	calls int
}

func (d *countingDispatcher) Submit(ctx context.Context, input string) (*dispatch.Outcome, error) {
	d.calls++
	return nil, dispatch.ErrSuperseded
}

func TestDispatch_Superseded(t *testing.T) {
	h := NewHandler(&fakeDispatcher{err: dispatch.ErrSuperseded}, newTestView(), &fakeRenderer{}, &mockRepo{}, stream.NewBroadcaster())
	router := newRouter(h)

	w := postDispatch(router, "{}")
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Error: superseded") {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestDispatch_TransportError(t *testing.T) {
	transport := &dispatch.TransportError{Err: errors.New("connection refused")}
	h := NewHandler(&fakeDispatcher{err: transport}, newTestView(), &fakeRenderer{}, &mockRepo{}, stream.NewBroadcaster())
	router := newRouter(h)

	w := postDispatch(router, "{}")
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Error: connection refused") {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestGetOverlays(t *testing.T) {
	env := setupTestRouter(t, respondWith(http.StatusOK, twoDeliveryPlan))
	if w := postDispatch(env.router, "{}"); w.Code != http.StatusOK {
		t.Fatalf("dispatch failed: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/overlays", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected geo+json content type, got %s", ct)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 6 {
		t.Fatalf("unexpected collection %+v", fc)
	}

	first := fc.Features[0]
	if first.Geometry.Type != "LineString" || first.Properties["color"] != "blue" {
		t.Errorf("expected blue path first, got %+v", first)
	}
	if first.Properties["drone_id"] != "D1" || first.Properties["delivery_id"] != float64(7) {
		t.Errorf("unexpected properties %v", first.Properties)
	}
	if fc.Features[1].Properties["role"] != "start" || fc.Features[2].Properties["role"] != "end" {
		t.Errorf("expected start then end markers")
	}
}

func TestGetView(t *testing.T) {
	env := setupTestRouter(t, respondWith(http.StatusOK, `{}`))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/view", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var resp ViewResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.View.Zoom != 15 || resp.Width != 1024 || resp.Height != 768 {
		t.Errorf("unexpected view %+v", resp)
	}
	if !strings.Contains(resp.Tiles.URLTemplate, "{z}/{x}/{y}") {
		t.Errorf("unexpected tile layer %+v", resp.Tiles)
	}
}

func TestGetMapPNG(t *testing.T) {
	tests := []struct {
		name       string
		renderer   *fakeRenderer
		wantStatus int
		wantType   string
	}{
		{"renders", &fakeRenderer{}, http.StatusOK, "image/png"},
		{"tile failure", &fakeRenderer{err: errors.New("tile fetch failed")}, http.StatusBadGateway, "application/json; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(NewHandler(&fakeDispatcher{}, newTestView(), tt.renderer, &mockRepo{}, stream.NewBroadcaster()))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/map.png", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != tt.wantType {
				t.Errorf("expected content type %s, got %s", tt.wantType, ct)
			}
		})
	}
}

func TestGetRuns(t *testing.T) {
	repo := &mockRepo{runs: []models.Run{
		{ID: "r1", Seq: 1, Outcome: models.RunOutcomeOK, Lines: 2, Duration: 250 * time.Millisecond},
		{ID: "r2", Seq: 2, Outcome: models.RunOutcomeHTTPError, HTTPStatus: 500, Error: "Error: 500 Internal Server Error"},
		{ID: "r3", Seq: 3, Outcome: models.RunOutcomeOK},
	}}
	router := newRouter(NewHandler(&fakeDispatcher{}, newTestView(), &fakeRenderer{}, repo, stream.NewBroadcaster()))

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{"no filters", "", http.StatusOK, 3},
		{"outcome filter", "?outcome=ok", http.StatusOK, 2},
		{"limit", "?limit=1", http.StatusOK, 1},
		{"limit out of range ignored", "?limit=1000", http.StatusOK, 3},
		{"unknown outcome", "?outcome=maybe", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/runs"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp struct {
				Runs []RunResponse `json:"runs"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if len(resp.Runs) != tt.wantCount {
				t.Errorf("expected %d runs, got %d", tt.wantCount, len(resp.Runs))
			}
		})
	}
}

func TestGetRuns_RepoError(t *testing.T) {
	repo := &mockRepo{err: errors.New("db down")}
	router := newRouter(NewHandler(&fakeDispatcher{}, newTestView(), &fakeRenderer{}, repo, stream.NewBroadcaster()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestGetRun(t *testing.T) {
	repo := &mockRepo{runs: []models.Run{
		{ID: "r1", Seq: 1, Outcome: models.RunOutcomeOK, Duration: 250 * time.Millisecond},
	}}
	router := newRouter(NewHandler(&fakeDispatcher{}, newTestView(), &fakeRenderer{}, repo, stream.NewBroadcaster()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/r1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ID != "r1" || resp.DurationMs != 250 {
		t.Errorf("unexpected run %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	router := newRouter(NewHandler(&fakeDispatcher{}, newTestView(), &fakeRenderer{}, &mockRepo{}, stream.NewBroadcaster()))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
	if resp["stream_dropped"] != float64(0) {
		t.Errorf("expected no dropped snapshots, got %v", resp["stream_dropped"])
	}
}

func TestHealth_ReportsDroppedSnapshots(t *testing.T) {
	broadcaster := stream.NewBroadcaster()
	router := newRouter(NewHandler(&fakeDispatcher{}, newTestView(), &fakeRenderer{}, &mockRepo{}, broadcaster))

	// A subscriber that never reads falls behind once its buffer is full.
	id, _ := broadcaster.Subscribe()
	defer broadcaster.Unsubscribe(id)
	for i := 0; i < 100; i++ {
		broadcaster.Publish(mapview.Snapshot{Version: uint64(i)})
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["subscribers"] != float64(1) {
		t.Errorf("expected 1 subscriber, got %v", resp["subscribers"])
	}
	dropped, _ := resp["stream_dropped"].(float64)
	if dropped <= 0 {
		t.Errorf("expected dropped snapshots to be reported, got %v", resp["stream_dropped"])
	}
}

func TestStream(t *testing.T) {
	env := setupTestRouter(t, respondWith(http.StatusOK, twoDeliveryPlan))
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/stream")
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected event stream, got %s", ct)
	}

	events := make(chan SnapshotEvent, 4)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var ev SnapshotEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &ev); err == nil {
				events <- ev
			}
		}
	}()

	next := func() SnapshotEvent {
		t.Helper()
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("stream closed early")
			}
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for snapshot event")
		}
		return SnapshotEvent{}
	}

	initial := next()
	if len(initial.Overlays.Features) != 0 || initial.View.Zoom != 15 {
		t.Errorf("unexpected initial snapshot %+v", initial)
	}

	// The subscriber registers before the initial event is written.
	if w := postDispatch(env.router, "{}"); w.Code != http.StatusOK {
		t.Fatalf("dispatch failed: %d", w.Code)
	}

	applied := next()
	if len(applied.Overlays.Features) != 6 {
		t.Errorf("expected 6 overlays in snapshot, got %d", len(applied.Overlays.Features))
	}
	if applied.Version <= initial.Version {
		t.Errorf("expected version to advance, got %d then %d", initial.Version, applied.Version)
	}

	env.broadcaster.Close()
	for range events {
	}
}
