// AngelaMos | 2026
// metrics_test.go

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/eternal-vault/internal/capsule"
	"github.com/carterperez-dev/eternal-vault/internal/notify"
)

var (
	_ capsule.Metrics       = (*Collector)(nil)
	_ capsule.RewardMetrics = (*Collector)(nil)
	_ notify.Metrics        = (*Collector)(nil)
)

func TestEconomyCounters(t *testing.T) {
	c := NewCollector()

	c.CapsuleCreated("private")
	c.CapsuleCreated("private")
	c.CapsuleCreated("public")
	c.CoinsDebited("private_capsule", 20)
	c.CoinsDebited("shared_access", 25)
	c.CoinsDebited("shared_access", 25)
	c.RewardCredited(10)
	c.RewardFailed()
	c.NotificationSent("sent")

	assert.InDelta(t, 2, testutil.ToFloat64(c.capsulesCreated.WithLabelValues("private")), 0)
	assert.InDelta(t, 50, testutil.ToFloat64(c.coinsDebited.WithLabelValues("shared_access")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(c.rewardCoins), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.rewardFailures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.notifications.WithLabelValues("sent")), 0)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	c := NewCollector()

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/api/capsules/{capsuleID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", c.Handler())

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/capsules/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.InDelta(t, 3, testutil.ToFloat64(
		c.httpRequests.WithLabelValues("GET", "/api/capsules/{capsuleID}", "418"),
	), 0)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "eternal_vault_http_requests_total"))
}
