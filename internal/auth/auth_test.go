package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	cfg := Config{Enabled: true, Token: "s3cret"}
	h := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"public frame", "/api/v1/frame", "", http.StatusNoContent},
		{"public body track", "/api/v1/bodies/Earth/track", "", http.StatusNoContent},
		{"health", "/healthz", "", http.StatusNoContent},
		{"input without token", "/api/v1/input", "", http.StatusUnauthorized},
		{"input wrong token", "/api/v1/input", "Bearer nope", http.StatusUnauthorized},
		{"input missing scheme", "/api/v1/input", "s3cret", http.StatusUnauthorized},
		{"input valid token", "/api/v1/input", "Bearer s3cret", http.StatusNoContent},
		{"input query token", "/api/v1/input?access_token=s3cret", "", http.StatusNoContent},
		{"settings without token", "/api/v1/postprocess", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestDisabledAllowsEverything(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/input", nil)
	if !Authorized(Config{}, req) {
		t.Error("disabled auth should authorize every request")
	}
}
