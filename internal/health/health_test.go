package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyz(t *testing.T) {
	ok := func() error { return nil }
	notYet := func() error { return errors.New("no frame published") }

	tests := []struct {
		name   string
		checks []Check
		want   int
		body   string
	}{
		{"no checks", nil, http.StatusOK, "ready"},
		{"all pass", []Check{ok, ok}, http.StatusOK, "ready"},
		{"one fails", []Check{ok, notYet}, http.StatusServiceUnavailable, "no frame published"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Readyz(tt.checks...)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.body)
			}
		})
	}
}
