// AngelaMos | 2026
// server_test.go

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/eternal-vault/internal/config"
)

type flagDrainer struct {
	down atomic.Bool
}

func (d *flagDrainer) SetShutdown(shutdown bool) { d.down.Store(shutdown) }

func newTestServer(d Drainer) *Server {
	return New(Config{
		ServerConfig: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ShutdownTimeout: time.Second,
		},
		HealthHandler: d,
	})
}

func TestRouterServesRegisteredRoutes(t *testing.T) {
	srv := newTestServer(nil)
	srv.Router().Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownMarksDrainerBeforeClosing(t *testing.T) {
	d := &flagDrainer{}
	srv := newTestServer(d)

	require.NoError(t, srv.Shutdown(context.Background(), 10*time.Millisecond))
	assert.True(t, d.down.Load())
}

func TestShutdownHonoursContextDuringDrain(t *testing.T) {
	srv := newTestServer(&flagDrainer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_ = srv.Shutdown(ctx, time.Minute)
	assert.Less(t, time.Since(start), 5*time.Second)
}
