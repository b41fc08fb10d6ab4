package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/hello-hal/internal/audit"
	"github.com/nerrad567/hello-hal/internal/driver"
	"github.com/nerrad567/hello-hal/internal/infrastructure/config"
	"github.com/nerrad567/hello-hal/internal/register"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type fakeAuditRepo struct {
	last audit.Filter
	err  error
}

func (f *fakeAuditRepo) Create(context.Context, *audit.Entry) error { return nil }

func (f *fakeAuditRepo) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.last = filter
	if f.err != nil {
		return nil, f.err
	}
	return &audit.ListResult{Logs: []audit.Entry{{ID: "aud-1", Action: "write"}}, Total: 1, Limit: 50}, nil
}

func testDriver(t *testing.T) *driver.Driver {
	t.Helper()
	d, err := driver.Attach(driver.NewNamespace(), driver.DefaultConfig())
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(d.Detach)
	return d
}

func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Driver == nil {
		deps.Driver = testDriver(t)
	}
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_RequiresDriver(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without driver succeeded")
	}
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		s := testServer(t, Deps{Version: "1.2.3", Checks: map[string]HealthChecker{
			"database": checkFunc(func(context.Context) error { return nil }),
		}})
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}
		resp := decode[HealthResponse](t, rec)
		if resp.Status != "ok" || resp.Version != "1.2.3" || resp.Device != "hello" || !resp.Attached {
			t.Errorf("health = %+v", resp)
		}
		if resp.Checks["database"] != "ok" {
			t.Errorf("checks = %v", resp.Checks)
		}
	})

	t.Run("failing check", func(t *testing.T) {
		s := testServer(t, Deps{Checks: map[string]HealthChecker{
			"mqtt": checkFunc(func(context.Context) error { return errors.New("mqtt: client not connected") }),
		}})
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		resp := decode[HealthResponse](t, rec)
		if resp.Status != "degraded" || resp.Checks["mqtt"] != "mqtt: client not connected" {
			t.Errorf("health = %+v", resp)
		}
	})

	t.Run("detached", func(t *testing.T) {
		d := testDriver(t)
		s := testServer(t, Deps{Driver: d})
		d.Detach()
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestRequestID_Propagated(t *testing.T) {
	s := testServer(t, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	if got := do(t, s, req).Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q, want abc", got)
	}
}

func TestListNodes(t *testing.T) {
	s := testServer(t, Deps{})
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decode[struct {
		Nodes []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"nodes"`
		Count int `json:"count"`
	}](t, rec)

	if resp.Count != 3 || len(resp.Nodes) != 3 {
		t.Fatalf("nodes = %+v, want 3", resp)
	}
	kinds := map[string]string{}
	for _, n := range resp.Nodes {
		kinds[n.Path] = n.Kind
	}
	want := map[string]string{
		"/dev/hello":                 "char",
		"/proc/hello":                "proc",
		"/sys/class/hello/hello/val": "attr",
	}
	for p, k := range want {
		if kinds[p] != k {
			t.Errorf("node %s kind = %q, want %q", p, kinds[p], k)
		}
	}
}

func TestGetRegister(t *testing.T) {
	d := testDriver(t)
	s := testServer(t, Deps{Driver: d})

	if _, err := d.Store().StoreText(context.Background(), []byte("-77")); err != nil {
		t.Fatalf("StoreText() error = %v", err)
	}

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/register", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[RegisterResponse](t, rec)
	if resp.Value != -77 || resp.Text != "-77\n" || resp.Consumed != nil {
		t.Errorf("register = %+v", resp)
	}
}

func TestSetRegister(t *testing.T) {
	d := testDriver(t)

	var mu sync.Mutex
	var events []driver.Event
	d.Subscribe(func(ev driver.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	s := testServer(t, Deps{Driver: d})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/register", strings.NewReader("123abc"))
	req.Header.Set("X-Request-ID", "r1")
	rec := do(t, s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s), want 200", rec.Code, rec.Body.String())
	}
	resp := decode[RegisterResponse](t, rec)
	if resp.Value != 123 || resp.Consumed == nil || *resp.Consumed != 6 || resp.Text != "123\n" {
		t.Errorf("register = %+v", resp)
	}

	v, err := d.Store().Value(context.Background())
	if err != nil || v != 123 {
		t.Errorf("Value() = %d, %v; want 123", v, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Kind != driver.KindAttr || events[0].Caller.Session != "api-r1" {
		t.Errorf("events = %+v, want one attr event from api-r1", events)
	}
}

func TestSetRegister_BodyLimits(t *testing.T) {
	s := testServer(t, Deps{})

	page := strings.Repeat("1", register.PageSize)
	rec := do(t, s, httptest.NewRequest(http.MethodPut, "/api/v1/register", strings.NewReader(page)))
	if rec.Code != http.StatusOK {
		t.Fatalf("page body status = %d, want 200", rec.Code)
	}
	if resp := decode[RegisterResponse](t, rec); resp.Consumed == nil || *resp.Consumed != register.PageSize-1 {
		t.Errorf("consumed = %v, want %d", resp.Consumed, register.PageSize-1)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodPut, "/api/v1/register", strings.NewReader(page+"1")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body status = %d, want 413", rec.Code)
	}
}

func TestSetRegister_Interrupted(t *testing.T) {
	s := testServer(t, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/register", strings.NewReader("5")).WithContext(ctx)

	rec := do(t, s, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp := decode[Error](t, rec); resp.Code != ErrCodeUnavailable {
		t.Errorf("error = %+v", resp)
	}
}

func TestRegister_Detached(t *testing.T) {
	d := testDriver(t)
	s := testServer(t, Deps{Driver: d})
	d.Detach()

	for _, method := range []string{http.MethodGet, http.MethodPut} {
		rec := do(t, s, httptest.NewRequest(method, "/api/v1/register", strings.NewReader("1")))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", method, rec.Code)
		}
	}
}

func TestSetRegister_PermissionDenied(t *testing.T) {
	cfg := driver.DefaultConfig()
	cfg.UID = 1000
	cfg.AttrMode = 0o444
	d, err := driver.Attach(driver.NewNamespace(), cfg)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	defer d.Detach()

	s := testServer(t, Deps{Driver: d})
	rec := do(t, s, httptest.NewRequest(http.MethodPut, "/api/v1/register", strings.NewReader("1")))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestAudit(t *testing.T) {
	t.Run("absent without repository", func(t *testing.T) {
		s := testServer(t, Deps{})
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("filters", func(t *testing.T) {
		repo := &fakeAuditRepo{}
		s := testServer(t, Deps{Audit: repo})
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/audit?source=char&user_id=uid:0&limit=5&offset=2", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		want := audit.Filter{Source: "char", UserID: "uid:0", Limit: 5, Offset: 2}
		if repo.last != want {
			t.Errorf("filter = %+v, want %+v", repo.last, want)
		}
		if resp := decode[audit.ListResult](t, rec); resp.Total != 1 || resp.Logs[0].ID != "aud-1" {
			t.Errorf("result = %+v", resp)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		s := testServer(t, Deps{Audit: &fakeAuditRepo{}})
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/audit?limit=ten", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("repository error", func(t *testing.T) {
		s := testServer(t, Deps{Audit: &fakeAuditRepo{err: errors.New("locked")}})
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestStartClose(t *testing.T) {
	s := testServer(t, Deps{Config: config.APIConfig{
		Host:     "127.0.0.1",
		Port:     0,
		Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
	}})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}

	resp, err := http.Get("http://" + s.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // Test cleanup
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
