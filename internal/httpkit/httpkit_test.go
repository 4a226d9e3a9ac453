package httpkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		in      string
		wantErr error
		fails   bool
	}{
		{name: "ok", in: `{"name":"a"}`},
		{name: "empty", in: ``, wantErr: ErrEmptyBody},
		{name: "trailing", in: `{"name":"a"}{"name":"b"}`, wantErr: ErrTrailingData},
		{name: "unknown field", in: `{"other":1}`, fails: true},
		{name: "malformed", in: `{"name":`, fails: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.in))
			var b body
			err := DecodeJSON(r, &b)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.fails:
				if err == nil {
					t.Error("expected error")
				}
			default:
				if err != nil || b.Name != "a" {
					t.Errorf("DecodeJSON() = %v, %+v", err, b)
				}
			}
		})
	}
}

func TestWriteErr(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErr(rec, http.StatusBadRequest, "VALIDATION_ERROR", "bad", map[string]any{"fields": []string{"videoUrl"}})

	if rec.Code != http.StatusBadRequest || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("status %d, content type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	var env ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Code != "VALIDATION_ERROR" || env.Error.Message != "bad" || env.Error.Details["fields"] == nil {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := CORS(CORSOptions{
		AllowedOrigins: []string{"http://localhost:5173", "https://*.example.com"},
		ExposedHeaders: []string{"X-Request-ID"},
	})(next)

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed bool
	}{
		{name: "exact origin", method: http.MethodPost, origin: "http://localhost:5173", wantStatus: http.StatusTeapot, wantAllowed: true},
		{name: "wildcard subdomain", method: http.MethodGet, origin: "https://app.example.com", wantStatus: http.StatusTeapot, wantAllowed: true},
		{name: "bare wildcard domain", method: http.MethodGet, origin: "https://example.com", wantStatus: http.StatusTeapot},
		{name: "wrong scheme", method: http.MethodGet, origin: "http://app.example.com", wantStatus: http.StatusTeapot},
		{name: "preflight allowed", method: http.MethodOptions, origin: "http://localhost:5173", preflight: true, wantStatus: http.StatusNoContent, wantAllowed: true},
		{name: "preflight denied", method: http.MethodOptions, origin: "http://evil.test", preflight: true, wantStatus: http.StatusNoContent},
		{name: "plain options passes through", method: http.MethodOptions, origin: "http://localhost:5173", wantStatus: http.StatusTeapot, wantAllowed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/video/process", nil)
			r.Header.Set("Origin", tt.origin)
			if tt.preflight {
				r.Header.Set("Access-Control-Request-Method", "POST")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			got := rec.Header().Get("Access-Control-Allow-Origin")
			if tt.wantAllowed != (got == tt.origin) {
				t.Errorf("allow origin = %q", got)
			}
			if tt.wantAllowed && tt.preflight && rec.Header().Get("Access-Control-Allow-Methods") == "" {
				t.Error("preflight must list methods")
			}
			if tt.wantAllowed && !tt.preflight && rec.Header().Get("Access-Control-Expose-Headers") != "X-Request-ID" {
				t.Error("simple request must expose headers")
			}
		})
	}
}
