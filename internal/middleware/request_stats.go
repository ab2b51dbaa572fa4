package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis keys shared by RequestStats and the health endpoints.
const (
	KeyReqTotal  = "nebs:health:req_total"
	KeyReqErrors = "nebs:health:req_errors"
	KeyResTime   = "nebs:health:res_time_total"
	KeyResCount  = "nebs:health:res_count"
	KeyStartTime = "nebs:health:start_time"
	KeyLastReq   = "nebs:health:last_request"
	KeyErrorLog  = "nebs:health:error_log"
)

// ErrorLogSize is how many 5xx entries are kept in KeyErrorLog.
const ErrorLogSize = 50

// StatsKeys lists every key RequestStats writes.
var StatsKeys = []string{KeyReqTotal, KeyReqErrors, KeyResTime, KeyResCount, KeyStartTime, KeyLastReq, KeyErrorLog}

// ErrorEntry is one element of the error log.
type ErrorEntry struct {
	Time    time.Time `json:"time"`
	Path    string    `json:"path"`
	Method  string    `json:"method"`
	Status  int       `json:"status"`
	Message string    `json:"message"`
	TraceID string    `json:"traceId,omitempty"`
}

// RequestStats records traffic counters in Redis for the health endpoints.
// Health probes, metrics scrapes and favicon requests are not counted. A nil
// client disables the middleware.
func RequestStats(rdb *redis.Client) fiber.Handler {
	if rdb == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/" || strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/api/health") ||
			path == "/metrics" || strings.HasPrefix(path, "/favicon") {
			return c.Next()
		}

		start := time.Now()
		ctx := context.Background()
		last, _ := json.Marshal(map[string]interface{}{
			"time":   start,
			"ip":     c.IP(),
			"path":   c.OriginalURL(),
			"method": c.Method(),
		})
		pipe := rdb.Pipeline()
		pipe.Set(ctx, KeyLastReq, last, 0)
		pipe.Incr(ctx, KeyReqTotal)
		pipe.SetNX(ctx, KeyStartTime, start.UnixMilli(), 0)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Debug().Err(err).Msg("Request stats unavailable")
		}

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// The error handler has not run yet.
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		pipe = rdb.Pipeline()
		pipe.Incr(ctx, KeyResCount)
		pipe.IncrByFloat(ctx, KeyResTime, float64(time.Since(start).Milliseconds()))
		if status >= fiber.StatusInternalServerError {
			pipe.Incr(ctx, KeyReqErrors)
			msg := string(c.Response().Body())
			if err != nil {
				msg = err.Error()
			}
			entry, _ := json.Marshal(ErrorEntry{
				Time:    time.Now().UTC(),
				Path:    c.OriginalURL(),
				Method:  c.Method(),
				Status:  status,
				Message: truncate(msg, 500),
				TraceID: GetTraceID(c),
			})
			pipe.LPush(ctx, KeyErrorLog, entry)
			pipe.LTrim(ctx, KeyErrorLog, 0, ErrorLogSize-1)
		}
		if _, perr := pipe.Exec(ctx); perr != nil {
			log.Debug().Err(perr).Msg("Request stats unavailable")
		}
		return err
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
