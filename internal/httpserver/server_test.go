package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/logdex/internal/logstore"
	"github.com/tinytelemetry/logdex/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *logstore.Store, http.Handler) {
	t.Helper()
	store, err := logstore.Open(nil, logstore.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := NewServer("", store)
	return srv, store, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIngestEndpoint(t *testing.T) {
	_, store, h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/logs", `{"level":"error","message":"Failed to connect to DB","resourceId":"server-1234"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}

	var body struct {
		Index   uint64 `json:"index"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Index != 1 || body.Message != "Logs Created !!!" {
		t.Fatalf("body = %+v", body)
	}
	if store.Len() != 1 {
		t.Fatalf("store len = %d, want 1", store.Len())
	}
}

func TestIngestEndpoint_Validation(t *testing.T) {
	_, store, h := newTestServer(t)

	for _, payload := range []string{
		`not json`,
		`[]`,
		`{"level":"fatal","message":"x"}`,
		`{"level":"info"}`,
		`{"level":"info","message":7}`,
	} {
		w := do(t, h, http.MethodPost, "/logs", payload)
		if w.Code != http.StatusBadRequest {
			t.Errorf("payload %s: status = %d, want 400", payload, w.Code)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("store len = %d after invalid payloads", store.Len())
	}
}

func TestFetchAllEndpoint_Envelope(t *testing.T) {
	_, _, h := newTestServer(t)

	do(t, h, http.MethodPost, "/logs", `{"level":"warn","message":"first"}`)
	do(t, h, http.MethodPost, "/logs", `{"level":"info","message":"second"}`)

	w := do(t, h, http.MethodGet, "/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := `{"0":{"error":[],"warn":[1],"info":[2],"debug":[],"message":[1,2]},` +
		`"1":{"level":"warn","message":"first"},"2":{"level":"info","message":"second"}}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Fatalf("body = %s\nwant  %s", got, want)
	}
}

func TestFetchAllEndpoint_LevelFilter(t *testing.T) {
	_, _, h := newTestServer(t)

	do(t, h, http.MethodPost, "/logs", `{"level":"error","message":"a"}`)
	do(t, h, http.MethodPost, "/logs", `{"level":"info","message":"b"}`)
	do(t, h, http.MethodPost, "/logs", `{"level":"error","message":"c"}`)

	w := do(t, h, http.MethodGet, "/logs?level=error", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var recs []model.LogRecord
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(recs) != 2 || recs[0].Message != "a" || recs[1].Message != "c" {
		t.Fatalf("records = %+v", recs)
	}

	w = do(t, h, http.MethodGet, "/logs?level=verbose", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid filter status = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, _, h := newTestServer(t)

	do(t, h, http.MethodPost, "/logs", `{"level":"error","message":"server-500 crashed"}`)

	w := do(t, h, http.MethodGet, "/logs/search?word=%20Crashed%20", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var recs []model.LogRecord
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(recs) != 1 || recs[0].Message != "server-500 crashed" {
		t.Fatalf("records = %+v", recs)
	}

	w = do(t, h, http.MethodGet, "/logs/search?word=500", "")
	if got := strings.TrimSpace(w.Body.String()); w.Code != http.StatusOK || got != "[]" {
		t.Fatalf("numeric search = %d %s, want 200 []", w.Code, got)
	}

	w = do(t, h, http.MethodGet, "/logs/search?word=nothing", "")
	if got := strings.TrimSpace(w.Body.String()); w.Code != http.StatusOK || got != "[]" {
		t.Fatalf("unknown search = %d %s, want 200 []", w.Code, got)
	}

	for _, target := range []string{"/logs/search", "/logs/search?word=", "/logs/search?word=%20%20"} {
		if w := do(t, h, http.MethodGet, target, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, w.Code)
		}
	}
}

func TestGetEndpoint(t *testing.T) {
	_, _, h := newTestServer(t)

	do(t, h, http.MethodPost, "/logs", `{"level":"debug","message":"tick","metadata":{"n":1}}`)

	w := do(t, h, http.MethodGet, "/logs/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"level":"debug","message":"tick","metadata":{"n":1}}` {
		t.Fatalf("body = %s", got)
	}

	if w := do(t, h, http.MethodGet, "/logs/2", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d, want 404", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/logs/0", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("index 0 status = %d, want 400", w.Code)
	}
}

func TestReindexAndStatsEndpoints(t *testing.T) {
	_, _, h := newTestServer(t)

	do(t, h, http.MethodPost, "/logs", `{"level":"info","message":"alpha beta"}`)

	w := do(t, h, http.MethodPost, "/logs/reindex", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reindex status = %d", w.Code)
	}
	var rebuilt map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &rebuilt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rebuilt["records"] != 1 || rebuilt["words"] != 2 {
		t.Fatalf("reindex body = %v", rebuilt)
	}

	w = do(t, h, http.MethodGet, "/api/stats", "")
	var stats model.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Records != 1 || stats.Words != 2 || stats.Buckets["info"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, _, h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	_, _, h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/logs", "")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin = %q, want *", got)
	}

	w = do(t, h, http.MethodOptions, "/logs", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
}

type failingStore struct {
	*logstore.Store
}

func (failingStore) Ingest(model.LogRecord) (uint64, error) {
	return 0, &model.PersistenceError{Op: "commit", Err: errors.New("disk full")}
}

func TestIngestEndpoint_PersistenceFailure(t *testing.T) {
	_, store, _ := newTestServer(t)
	h := NewServer("", failingStore{store}).Handler()

	w := do(t, h, http.MethodPost, "/logs", `{"level":"info","message":"x"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
