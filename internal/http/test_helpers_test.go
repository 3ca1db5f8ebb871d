package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mistakeknot/chargeq/internal/storage/sqlite"
	"github.com/mistakeknot/chargeq/internal/ws"
)

// testEnv bundles a Service + httptest.Server + ws.Hub for handler tests.
// No auth middleware is installed, so requests need no API key.
type testEnv struct {
	srv   *httptest.Server
	hub   *ws.Hub
	store *sqlite.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := sqlite.NewInMemory()
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	hub := ws.NewHub()
	svc := NewService(st).WithBroadcaster(hub)
	srv := httptest.NewServer(NewRouter(svc, hub.Handler(), nil))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, hub: hub, store: st}
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.send(t, http.MethodPost, path, body, "")
}

func (e *testEnv) put(t *testing.T, path string, body any, ifMatch string) *http.Response {
	t.Helper()
	return e.send(t, http.MethodPut, path, body, ifMatch)
}

func (e *testEnv) del(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.send(t, http.MethodDelete, path, nil, "")
}

func (e *testEnv) send(t *testing.T, method, path string, body any, ifMatch string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

// createUser registers a user through the API and returns its id.
func (e *testEnv) createUser(t *testing.T, name string) string {
	t.Helper()
	resp := e.post(t, "/api/users", map[string]string{"name": name})
	requireStatus(t, resp, http.StatusCreated)
	u := decodeJSON[map[string]any](t, resp)
	id, _ := u["id"].(string)
	if id == "" {
		t.Fatalf("create user response missing id: %+v", u)
	}
	return id
}
