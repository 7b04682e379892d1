package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/app"
)

type fakeStarter struct {
	got []app.Submission
}

func (f *fakeStarter) Start(_ context.Context, sub app.Submission) (string, error) {
	sub, err := sub.Normalize()
	if err != nil {
		return "", err
	}
	f.got = append(f.got, sub)
	return "run-1", nil
}

type testServer struct {
	handler http.Handler
	starter *fakeStarter
	runs    *app.RunService
	queue   *app.AdmissionQueue
	bus     *memorybus.Bus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	bus := memorybus.New()
	reg := prometheus.NewRegistry()
	metrics := app.NewMetrics(reg)
	ts := &testServer{
		starter: &fakeStarter{},
		runs:    app.NewRunService(sqlite.NewRunsRepository(db.SQL), bus),
		queue:   app.NewAdmissionQueue(zerolog.Nop(), metrics, app.AdmissionOptions{}),
		bus:     bus,
	}
	backups := app.NewBackupTracker(context.Background(), zerolog.Nop(), nil, nil, metrics, 1)
	ts.handler = NewServer(zerolog.Nop(), Deps{
		Pipeline: ts.starter,
		Runs:     ts.runs,
		Queue:    ts.queue,
		Backups:  backups,
		Bus:      bus,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}).Router()
	return ts
}

func (ts *testServer) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func TestFiles_SubmitAccepted(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/api/v1/files", []byte(`{"source":"/data/in/Show.S01E01.1080p.mkv"}`))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status: want %d, got %d (%s)", http.StatusAccepted, rr.Code, rr.Body.String())
	}
	var resp submitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID != "run-1" {
		t.Fatalf("unexpected run id %q", resp.RunID)
	}
	if len(ts.starter.got) != 1 || ts.starter.got[0].Name != "Show.S01E01.1080p.mkv" {
		t.Fatalf("unexpected submissions: %+v", ts.starter.got)
	}
}

func TestFiles_SubmitRejectsInvalid(t *testing.T) {
	ts := newTestServer(t)

	if rr := ts.do(http.MethodPost, "/api/v1/files", []byte(`{`)); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid json: want 400, got %d", rr.Code)
	}
	if rr := ts.do(http.MethodPost, "/api/v1/files", []byte(`{"source":"  "}`)); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing source: want 400, got %d", rr.Code)
	}
}

func TestRuns_ListAndGet(t *testing.T) {
	ts := newTestServer(t)
	created, err := ts.runs.Create(context.Background(), "Show.S01E01.mkv")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rr := ts.do(http.MethodGet, "/api/v1/runs?limit=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: got %d", rr.Code)
	}
	var runs []app.RunDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != created.ID || runs[0].State != "resolving" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	if rr := ts.do(http.MethodGet, "/api/v1/runs/"+created.ID, nil); rr.Code != http.StatusOK {
		t.Fatalf("get: got %d", rr.Code)
	}
	if rr := ts.do(http.MethodGet, "/api/v1/runs/missing", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("get missing: want 404, got %d", rr.Code)
	}
}

func TestQueueAndHealth(t *testing.T) {
	ts := newTestServer(t)
	if _, err := ts.queue.Submit(11); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rr := ts.do(http.MethodGet, "/api/v1/queue", nil)
	var snap app.AdmissionSnapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Busy || len(snap.Pending) != 1 || snap.Pending[0] != 11 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	rr = ts.do(http.MethodGet, "/api/v1/health", nil)
	var health healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.Pending != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestMetricsAndOpenAPI(t *testing.T) {
	ts := newTestServer(t)
	if _, err := ts.queue.Submit(1); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rr := ts.do(http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "aae_admission_queue_depth 1") {
		t.Fatalf("metrics: %d %s", rr.Code, rr.Body.String())
	}

	rr = ts.do(http.MethodGet, "/api/v1/openapi.json", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "/api/v1/files") {
		t.Fatalf("openapi: %d", rr.Code)
	}
	if rr := ts.do(http.MethodGet, "/api/v1/backups", nil); rr.Code != http.StatusOK {
		t.Fatalf("backups: %d", rr.Code)
	}
}

func TestEvents_StreamsBusEvents(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}

	if got := readEvent(); got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
	if _, err := ts.runs.Create(context.Background(), "Show.S01E01.mkv"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := readEvent(); got != "run.created" {
		t.Fatalf("expected run.created, got %q", got)
	}
}
