package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeKeysFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write keys file: %v", err)
	}
	return path
}

func TestLoadKeyring(t *testing.T) {
	path := writeKeysFile(t, `
default_policy:
  allow_localhost_without_auth: false
keys:
  - alpha-key
  - "  beta-key  "
  - ""
`)
	ring, err := LoadKeyring(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ring.AllowLocalhostWithoutAuth {
		t.Error("localhost bypass enabled despite policy")
	}
	if !ring.HasKey("alpha-key") || !ring.HasKey("beta-key") {
		t.Error("keys not loaded")
	}
	if ring.HasKey("") || ring.HasKey("gamma-key") {
		t.Error("unexpected key accepted")
	}
}

func TestLoadKeyringMissingFile(t *testing.T) {
	ring, err := LoadKeyring(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ring.AllowLocalhostWithoutAuth {
		t.Error("default keyring must allow localhost")
	}
	if ring.HasKey("anything") {
		t.Error("default keyring must hold no keys")
	}
}

func TestLoadKeyringBadYAML(t *testing.T) {
	path := writeKeysFile(t, "keys: [unterminated")
	if _, err := LoadKeyring(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func protectedHandler(ring *Keyring) http.Handler {
	mw := Middleware(ring)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := FromContext(r.Context())
		if !ok {
			http.Error(w, "no auth info", http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Auth-Mode", string(info.Mode))
		w.WriteHeader(http.StatusOK)
	}))
}

func doRequest(h http.Handler, remoteAddr, forwardedFor, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMiddlewareLocalhostBypass(t *testing.T) {
	h := protectedHandler(NewKeyring(true, "secret"))

	rr := doRequest(h, "127.0.0.1:52000", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("loopback without key: %d", rr.Code)
	}
	if rr.Header().Get("X-Auth-Mode") != string(ModeLocalhost) {
		t.Errorf("auth mode = %q", rr.Header().Get("X-Auth-Mode"))
	}

	// A proxied remote client must not inherit the bypass.
	rr = doRequest(h, "127.0.0.1:52000", "203.0.113.10", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("forwarded remote without key: %d, want 401", rr.Code)
	}
}

func TestMiddlewareBearerKey(t *testing.T) {
	h := protectedHandler(NewKeyring(false, "secret"))

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"valid key", "secret", http.StatusOK},
		{"wrong key", "other", http.StatusUnauthorized},
		{"no key", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(h, "203.0.113.10:9999", "", tt.bearer)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusOK && rr.Header().Get("X-Auth-Mode") != string(ModeAPIKey) {
				t.Errorf("auth mode = %q", rr.Header().Get("X-Auth-Mode"))
			}
		})
	}
}

func TestMiddlewareLocalhostDisabled(t *testing.T) {
	h := protectedHandler(NewKeyring(false, "secret"))
	rr := doRequest(h, "127.0.0.1:52000", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("loopback with bypass disabled: %d, want 401", rr.Code)
	}
}

func TestIsLocalRequestForwardedChain(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 127.0.0.1")
	if isLocalRequest(req) {
		t.Error("first hop is remote; request must not count as local")
	}

	req.Header.Set("X-Forwarded-For", "127.0.0.1, 198.51.100.7")
	if !isLocalRequest(req) {
		t.Error("loopback first hop must count as local")
	}
}
