package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"softdex/internal/api"
	"softdex/internal/query"
	"softdex/internal/scan"
	"softdex/internal/software"
	"softdex/internal/testsupport"
)

type scannerStub struct{}

func (scannerStub) Run(context.Context) (scan.Summary, error) {
	return scan.Summary{CorrelationID: "stub"}, nil
}

type querierStub struct {
	views []software.MergedView
	got   query.Filter
}

func (q *querierStub) Query(_ context.Context, filter query.Filter) ([]software.MergedView, error) {
	q.got = filter
	return q.views, nil
}

func newTestServer(t *testing.T, opts ...Option) (*apiServer, *Daemon) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d, err := New(cfg, scannerStub{}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv, err := newAPIServer(cfg, d, nil)
	if err != nil || srv == nil {
		t.Fatalf("newAPIServer: %v", err)
	}
	return srv, d
}

func TestAPIServerHandleSoftware(t *testing.T) {
	querier := &querierStub{views: []software.MergedView{{Name: "Blender", Source: "DesktopEntry", Category: software.CategoryMedia}}}
	srv, _ := newTestServer(t, WithQuerier(querier))

	req := httptest.NewRequest(http.MethodGet, "/api/software?category=media&source=+DesktopEntry+", nil)
	w := httptest.NewRecorder()
	srv.handleSoftware(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.SoftwareListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.Items[0].Name != "Blender" {
		t.Fatalf("unexpected listing: %#v", resp)
	}
	if querier.got.Category != "media" || querier.got.Source != "DesktopEntry" {
		t.Fatalf("unexpected filter: %#v", querier.got)
	}
}

func TestAPIServerSoftwareWithoutQuerier(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.handleSoftware(w, httptest.NewRequest(http.MethodGet, "/api/software", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
}

func TestAPIServerRejectsWrongMethods(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		method  string
		handler http.HandlerFunc
	}{
		{http.MethodPost, srv.handleStatus},
		{http.MethodDelete, srv.handleSoftware},
		{http.MethodGet, srv.handleScan},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		tc.handler(w, httptest.NewRequest(tc.method, "/", nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", tc.method, w.Code)
		}
	}
}

func TestAPIServerQueuesAsyncScan(t *testing.T) {
	srv, d := newTestServer(t)

	w := httptest.NewRecorder()
	srv.handleScan(w, httptest.NewRequest(http.MethodPost, "/api/scan?async=true", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	select {
	case reason := <-d.rescan:
		if reason != "api" {
			t.Fatalf("unexpected rescan reason %q", reason)
		}
	default:
		t.Fatal("expected a queued rescan")
	}
}

func TestAPIServerInlineScanRecordsStatus(t *testing.T) {
	srv, d := newTestServer(t)

	w := httptest.NewRecorder()
	srv.handleScan(w, httptest.NewRequest(http.MethodPost, "/api/scan", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	status := d.Status(context.Background())
	if status.LastScan == nil || status.LastScan.CorrelationID != "stub" {
		t.Fatalf("expected last scan to be recorded, got %#v", status.LastScan)
	}
	if status.Running {
		t.Fatal("daemon was never started")
	}
}

func TestAuthMiddleware(t *testing.T) {
	called := false
	next := func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}

	open := authMiddleware("", next)
	w := httptest.NewRecorder()
	open(w, httptest.NewRequest(http.MethodPost, "/api/scan", nil))
	if !called || w.Code != http.StatusNoContent {
		t.Fatal("empty token must not require auth")
	}

	guarded := authMiddleware("secret", next)
	for _, header := range []string{"", "Basic secret", "Bearer wrong"} {
		called = false
		req := httptest.NewRequest(http.MethodPost, "/api/scan", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		guarded(w, req)
		if called || w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/scan", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	guarded(w, req)
	if !called || w.Code != http.StatusNoContent {
		t.Fatalf("expected authorized request to pass, got %d", w.Code)
	}
}
