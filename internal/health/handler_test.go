// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func serve(t *testing.T, h *Handler, path string) (int, ReadinessResponse) {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		deps   []Dependency
		code   int
		status string
	}{
		{
			name: "all healthy",
			deps: []Dependency{
				{Name: "database", Checker: CheckerFunc(ok)},
				{Name: "redis", Checker: CheckerFunc(ok)},
			},
			code:   http.StatusOK,
			status: "ok",
		},
		{
			name: "required dependency down",
			deps: []Dependency{
				{Name: "database", Checker: CheckerFunc(down)},
				{Name: "redis", Checker: CheckerFunc(ok)},
			},
			code:   http.StatusServiceUnavailable,
			status: "degraded",
		},
		{
			name: "optional dependency down",
			deps: []Dependency{
				{Name: "database", Checker: CheckerFunc(ok)},
				{Name: "redis", Checker: CheckerFunc(down), Optional: true},
			},
			code:   http.StatusOK,
			status: "ok",
		},
		{
			name:   "missing checker",
			deps:   []Dependency{{Name: "database"}},
			code:   http.StatusServiceUnavailable,
			status: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := serve(t, NewHandler(tt.deps...), "/readyz")
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, body.Status)
			require.Len(t, body.Checks, len(tt.deps))
			assert.Equal(t, tt.deps[0].Name, body.Checks[0].Name)
		})
	}
}

func TestShutdownFailsProbes(t *testing.T) {
	h := NewHandler(Dependency{Name: "database", Checker: CheckerFunc(ok)})

	code, _ := serve(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)

	h.SetShutdown(true)

	code, body := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "shutting_down", body.Status)

	code, _ = serve(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestNotReady(t *testing.T) {
	h := NewHandler()
	h.SetReady(false)

	code, body := serve(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", body.Status)
}
