package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// DependencyCheck probes a backing service other than the database, such as
// the summary cache. A nil error means healthy.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// runChecks evaluates every dependency and reports per-name status. The
// second return value is false if any check failed.
func runChecks(ctx context.Context, checks []DependencyCheck) (map[string]string, bool) {
	results := make(map[string]string, len(checks))
	ok := true
	for _, dc := range checks {
		if err := dc.Check(ctx); err != nil {
			results[dc.Name] = err.Error()
			ok = false
			continue
		}
		results[dc.Name] = "ok"
	}
	return results, ok
}

// HealthHandler returns a handler for the database health check endpoint.
// Additional dependency checks are reported alongside the pool statistics.
func HealthHandler(pool *pgxpool.Pool, checks ...DependencyCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := pool.Ping(ctx)
		stats := GetPoolStats(pool)
		deps, depsOK := runChecks(ctx, checks)

		if err != nil || !depsOK {
			body := map[string]interface{}{
				"status":       "unhealthy",
				"pool":         stats,
				"dependencies": deps,
			}
			if err != nil {
				stats.Healthy = false
				body["error"] = err.Error()
			}
			return c.JSON(http.StatusServiceUnavailable, body)
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":       "healthy",
			"pool":         stats,
			"dependencies": deps,
		})
	}
}
