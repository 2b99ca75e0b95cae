// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/eternal-vault/internal/account"
	"github.com/carterperez-dev/eternal-vault/internal/capsule"
	"github.com/carterperez-dev/eternal-vault/internal/core"
	"github.com/carterperez-dev/eternal-vault/internal/notify"
)

type Economy interface {
	Totals(ctx context.Context) (account.Totals, error)
}

type Capsules interface {
	Counts(ctx context.Context) (capsule.Counts, error)
	Today() time.Time
	Location() *time.Location
}

type Sweeper interface {
	Sweep(ctx context.Context, day time.Time) (notify.SweepReport, error)
}

type Handler struct {
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
	redisPing  func(ctx context.Context) error
	dbPing     func(ctx context.Context) error
	economy    Economy
	capsules   Capsules
	sweeper    Sweeper
}

type HandlerConfig struct {
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	RedisPing  func(ctx context.Context) error
	DBPing     func(ctx context.Context) error
	Economy    Economy
	Capsules   Capsules
	Sweeper    Sweeper
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
		redisPing:  cfg.RedisPing,
		dbPing:     cfg.DBPing,
		economy:    cfg.Economy,
		capsules:   cfg.Capsules,
		sweeper:    cfg.Sweeper,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetSystemStats)
		r.Get("/stats/db", h.GetDatabaseStats)
		r.Get("/stats/redis", h.GetRedisStats)
		r.Get("/stats/runtime", h.GetRuntimeStats)
		r.Get("/stats/economy", h.GetEconomyStats)
		r.Post("/notifications/sweep", h.TriggerSweep)
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := SystemStatsResponse{
		Database: DatabaseStatus{
			Healthy: healthy(ctx, h.dbPing),
			Stats:   h.getDBStats(),
		},
		Redis: RedisStatus{
			Healthy: healthy(ctx, h.redisPing),
			Stats:   h.getRedisStats(),
		},
		Runtime: runtimeStats(),
	}

	if h.economy != nil && h.capsules != nil {
		economy, err := h.economyStats(ctx)
		if err != nil {
			slog.WarnContext(ctx, "economy stats unavailable", "error", err)
		} else {
			response.Economy = economy
		}
	}

	core.OK(w, response)
}

func (h *Handler) GetDatabaseStats(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.getDBStats())
}

func (h *Handler) GetRedisStats(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.getRedisStats())
}

func (h *Handler) GetRuntimeStats(w http.ResponseWriter, r *http.Request) {
	core.OK(w, runtimeStats())
}

func (h *Handler) GetEconomyStats(w http.ResponseWriter, r *http.Request) {
	if h.economy == nil || h.capsules == nil {
		core.NotFound(w, "economy stats")
		return
	}

	stats, err := h.economyStats(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, stats)
}

func (h *Handler) economyStats(ctx context.Context) (*EconomyStatsResponse, error) {
	totals, err := h.economy.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("economy totals: %w", err)
	}

	counts, err := h.capsules.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("capsule counts: %w", err)
	}

	return &EconomyStatsResponse{
		Accounts:    totals.Accounts,
		Admins:      totals.Admins,
		CoinsInPlay: totals.CoinsInPlay,
		Capsules: CapsuleCounts{
			Total:    counts.Total,
			Public:   counts.Public,
			Private:  counts.Private,
			Shared:   counts.Shared,
			Unlocked: counts.Unlocked,
			Sealed:   counts.Total - counts.Unlocked,
		},
	}, nil
}

// TriggerSweep sends unlock notices for ?date=YYYY-MM-DD, or today when no
// date is given. It bypasses the scheduler's once-per-day lock.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil || h.capsules == nil {
		core.NotFound(w, "notification sweep")
		return
	}

	day := h.capsules.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := core.ParseDay(raw, h.capsules.Location())
		if err != nil {
			core.BadRequest(w, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	report, err := h.sweeper.Sweep(r.Context(), day)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, report)
}

func healthy(ctx context.Context, ping func(ctx context.Context) error) bool {
	if ping == nil {
		return true
	}
	return ping(ctx) == nil
}

func runtimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxIdleTimeClosed:  stats.MaxIdleTimeClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	if stats == nil {
		return nil
	}
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
		StaleConns: stats.StaleConns,
	}
}
