package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const pingTimeout = 3 * time.Second

// Pinger is the part of *pgxpool.Pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

type poolReport struct {
	Total        int32  `json:"total_conns"`
	Idle         int32  `json:"idle_conns"`
	InUse        int32  `json:"acquired_conns"`
	Max          int32  `json:"max_conns"`
	EmptyWaits   int64  `json:"empty_acquire_count"`
	PingDuration string `json:"ping"`
}

// HealthHandler answers GET /health/db: 200 with pool counters when a ping
// succeeds within pingTimeout, 503 otherwise. The ping error is only logged.
func HealthHandler(pool Pinger, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
		defer cancel()

		start := time.Now()
		err := pool.Ping(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error().Err(err).Dur("elapsed", elapsed).Msg("database ping failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"success":  false,
				"database": "unreachable",
			})
		}

		st := pool.Stat()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":  true,
			"database": "ok",
			"pool": poolReport{
				Total:        st.TotalConns(),
				Idle:         st.IdleConns(),
				InUse:        st.AcquiredConns(),
				Max:          st.MaxConns(),
				EmptyWaits:   st.EmptyAcquireCount(),
				PingDuration: elapsed.Round(time.Microsecond).String(),
			},
		})
	}
}
