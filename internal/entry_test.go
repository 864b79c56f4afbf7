package internal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyHandler(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name string
		deps map[string]pinger
		want int
	}{
		{"all up", map[string]pinger{"store": ok}, http.StatusOK},
		{"redis down", map[string]pinger{"store": ok, "redis": down}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			readyHandler(tt.deps)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestSQLitePath(t *testing.T) {
	tests := map[string]string{
		"./arbor.db":                        "./arbor.db",
		"/var/lib/arbor.db?_busy_timeout=1": "/var/lib/arbor.db",
		"file:data/arbor.db?mode=rwc":       "data/arbor.db",
	}
	for dsn, want := range tests {
		if got := sqlitePath(dsn); got != want {
			t.Errorf("sqlitePath(%q) = %q, want %q", dsn, got, want)
		}
	}
}
