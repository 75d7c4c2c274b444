package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"dayplanner/internal/forecast"
	"dayplanner/internal/quotes"
	"dayplanner/internal/storage"
	"dayplanner/internal/taskstore"
	logx "dayplanner/pkg/logx"
)

func init() { gin.SetMode(gin.TestMode) }

func newStore(t *testing.T) *taskstore.Store {
	t.Helper()
	st, err := taskstore.Open(taskstore.Config{Path: filepath.Join(t.TempDir(), "tasks.json")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTasksRoundTrip(t *testing.T) {
	r := NewRouter(Deps{Store: newStore(t)})

	w := do(r, http.MethodGet, "/api/tasks/2024-05-01", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "{}" {
		t.Fatalf("empty GET = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}

	w = do(r, http.MethodPut, "/api/tasks/2024-05-01", `{"13":{"text":"Lunch"}}`)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"ok":true}` {
		t.Fatalf("PUT = %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/tasks/2024-05-01", "")
	var got map[string]map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v (%s)", err, w.Body.String())
	}
	if got["13"]["text"] != "Lunch" || len(got) != 1 {
		t.Fatalf("GET = %v", got)
	}

	// Clearing the day removes it.
	_ = do(r, http.MethodPut, "/api/tasks/2024-05-01", `{}`)
	w = do(r, http.MethodGet, "/api/tasks/2024-05-01", "")
	if strings.TrimSpace(w.Body.String()) != "{}" {
		t.Fatalf("after clear = %s", w.Body.String())
	}
}

func TestTasksBadRequests(t *testing.T) {
	st := newStore(t)
	r := NewRouter(Deps{Store: st})

	cases := []struct {
		name, method, path, body string
	}{
		{"bad date get", http.MethodGet, "/api/tasks/2024-13-01", ""},
		{"bad date put", http.MethodPut, "/api/tasks/yesterday", `{}`},
		{"invalid json", http.MethodPut, "/api/tasks/2024-05-01", `{"13":`},
		{"array body", http.MethodPut, "/api/tasks/2024-05-01", `[1,2]`},
		{"hour out of range", http.MethodPut, "/api/tasks/2024-05-01", `{"24":{"text":"x"}}`},
		{"empty body", http.MethodPut, "/api/tasks/2024-05-01", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, tc.method, tc.path, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("code = %d, want 400 (%s)", w.Code, w.Body.String())
			}
		})
	}
	if len(st.Dates()) != 0 {
		t.Fatalf("rejected requests wrote: %v", st.Dates())
	}
}

type failingStore struct{}

func (failingStore) GetDay(string) taskstore.DayTasks { return taskstore.DayTasks{} }
func (failingStore) PutDay(string, taskstore.DayTasks) error {
	return errors.New("disk full")
}

func TestTasksWriteFailure(t *testing.T) {
	r := NewRouter(Deps{Store: failingStore{}})
	w := do(r, http.MethodPut, "/api/tasks/2024-05-01", `{"9":{"text":"x"}}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", w.Code)
	}
}

type stubWeather struct{ f forecast.Forecast }

func (s stubWeather) Get(context.Context) forecast.Forecast { return s.f }

type stubQuotes struct{ s quotes.Snapshot }

func (s stubQuotes) Get(context.Context) quotes.Snapshot { return s.s }

func TestWeatherAndQuotes(t *testing.T) {
	price := 101.5
	r := NewRouter(Deps{
		Store:   failingStore{},
		Weather: stubWeather{f: forecast.Unavailable()},
		Quotes:  stubQuotes{s: quotes.Snapshot{"S&P": {Price: &price}}},
	})

	w := do(r, http.MethodGet, "/api/weather", "")
	want := `{"current":{"temp":null,"desc":"Unavailable"},"days":{}}`
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != want {
		t.Fatalf("weather = %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/quotes", "")
	var snap map[string]map[string]*float64
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if p := snap["S&P"]["price"]; p == nil || *p != 101.5 {
		t.Fatalf("quotes = %s", w.Body.String())
	}
	if snap["S&P"]["change_pct"] != nil {
		t.Fatalf("change_pct should be null: %s", w.Body.String())
	}
}

func TestWeatherDisabled(t *testing.T) {
	r := NewRouter(Deps{Store: failingStore{}})
	w := do(r, http.MethodGet, "/api/weather", "")
	if !strings.Contains(w.Body.String(), `"Unavailable"`) {
		t.Fatalf("weather = %s", w.Body.String())
	}
}

type stubHistory struct{ limit int }

func (s *stubHistory) History(_ context.Context, limit int) ([]storage.AuditEntry, error) {
	s.limit = limit
	return []storage.AuditEntry{{Date: "2024-05-01", Hour: 9, Text: "x", OK: true}}, nil
}

func TestHistory(t *testing.T) {
	r := NewRouter(Deps{Store: failingStore{}})
	if w := do(r, http.MethodGet, "/api/reminders/history", ""); strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("disabled history = %s", w.Body.String())
	}

	h := &stubHistory{}
	r = NewRouter(Deps{Store: failingStore{}, History: h})
	w := do(r, http.MethodGet, "/api/reminders/history?limit=5", "")
	if w.Code != http.StatusOK || h.limit != 5 || !strings.Contains(w.Body.String(), `"hour":9`) {
		t.Fatalf("history = %d %s (limit %d)", w.Code, w.Body.String(), h.limit)
	}
	if w := do(r, http.MethodGet, "/api/reminders/history?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit code = %d", w.Code)
	}
}

func TestIndexAndHealth(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.html")
	r := NewRouter(Deps{Store: failingStore{}, IndexPath: index})

	if w := do(r, http.MethodGet, "/", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing index code = %d", w.Code)
	}
	if err := os.WriteFile(index, []byte("<h1>planner</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/", "/index.html"} {
		w := do(r, http.MethodGet, p, "")
		if w.Code != http.StatusOK || w.Body.String() != "<h1>planner</h1>" {
			t.Fatalf("%s = %d %s", p, w.Code, w.Body.String())
		}
	}
	if w := do(r, http.MethodGet, "/healthz", ""); w.Body.String() != "ok" {
		t.Fatalf("healthz = %s", w.Body.String())
	}
	if w := do(r, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "dayplanner_http_requests_total") {
		t.Fatalf("metrics = %d", w.Code)
	}
}

func TestPprofMountedOnlyWhenEnabled(t *testing.T) {
	r := NewRouter(Deps{Store: failingStore{}})
	if w := do(r, http.MethodGet, "/debug/pprof/", ""); w.Code != http.StatusNotFound {
		t.Fatalf("pprof off code = %d", w.Code)
	}
	r = NewRouter(Deps{Store: failingStore{}, Pprof: true})
	if w := do(r, http.MethodGet, "/debug/pprof/", ""); w.Code != http.StatusOK {
		t.Fatalf("pprof on code = %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	r := NewRouter(Deps{Store: failingStore{}, Status: func() any { return gin.H{"dates": 3} }})
	if w := do(r, http.MethodGet, "/api/status", ""); !strings.Contains(w.Body.String(), `"dates":3`) {
		t.Fatalf("status = %s", w.Body.String())
	}
}
