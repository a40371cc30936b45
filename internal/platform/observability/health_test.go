package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pinger(err error) Pinger {
	return PingFunc(func(context.Context) error { return err })
}

func TestServer_Handler(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		checks   map[string]Pinger
		wantCode int
	}{
		{"liveness", "/healthz", nil, http.StatusOK},
		{"ready", "/readyz", map[string]Pinger{"postgres": pinger(nil)}, http.StatusOK},
		{"ready without checks", "/readyz", nil, http.StatusOK},
		{"not ready", "/readyz", map[string]Pinger{"postgres": pinger(errors.New("connection refused"))}, http.StatusServiceUnavailable},
		{"metrics", "/metrics", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(tt.checks, 0, nil)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestServer_ReadyReportsEachCheck(t *testing.T) {
	srv := NewServer(map[string]Pinger{
		"postgres": pinger(nil),
		"redis":    pinger(errors.New("dial tcp: refused")),
	}, 0, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body readiness
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, statusError, body.Status)
	assert.Equal(t, statusOK, body.Checks["postgres"])
	assert.Equal(t, "dial tcp: refused", body.Checks["redis"])
}
