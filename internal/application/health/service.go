// Package health collects the data served by the health endpoints.
package health

import (
	"context"
	"encoding/json"
	"runtime"
	"strconv"
	"time"

	"nebs-backend/internal/infrastructure/database"
	"nebs-backend/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Database is the part of the connection manager the health report reads.
type Database interface {
	State() database.State
	Host() string
	Ping(ctx context.Context) error
}

// Report is the /health/json body.
type Report struct {
	Service      string               `json:"service"`
	Status       string               `json:"status"`
	Timestamp    string               `json:"timestamp"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Dependencies map[string]DepStatus `json:"dependencies"`
}

type RuntimeInfo struct {
	UptimeSeconds int64      `json:"uptimeSeconds"`
	Memory        MemoryInfo `json:"memory"`
	Goroutines    int        `json:"goroutines"`
	Platform      string     `json:"platform"`
	GoVersion     string     `json:"goVersion"`
}

// MemoryInfo is in MiB.
type MemoryInfo struct {
	Alloc    int `json:"alloc"`
	HeapUsed int `json:"heapUsed"`
	Sys      int `json:"sys"`
}

type TrafficInfo struct {
	TotalRequests   int         `json:"totalRequests"`
	SuccessCount    int         `json:"successCount"`
	FailedCount     int         `json:"failedCount"`
	SuccessRate     string      `json:"successRate"`
	AvgResponseTime interface{} `json:"avgResponseTime"`
	LastRequest     interface{} `json:"lastRequest"`
}

type DepStatus struct {
	Status string      `json:"status"`
	Host   string      `json:"host,omitempty"`
	PingMs interface{} `json:"pingMs"`
}

// ServiceName is reported in every health body.
const ServiceName = "nebs-backend"

var processStart = time.Now()

// Collect gathers the health report. A nil Redis client is reported as
// "disabled" and does not degrade the overall status; traffic then covers
// nothing.
func Collect(ctx context.Context, rdb *redis.Client, db Database) Report {
	report := Report{
		Service:      ServiceName,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		Dependencies: make(map[string]DepStatus),
	}

	dbDep := DepStatus{Status: database.Disconnected.String()}
	if db != nil {
		dbDep.Status = db.State().String()
		dbDep.Host = db.Host()
		if db.State() == database.Connected {
			start := time.Now()
			if err := db.Ping(ctx); err == nil {
				dbDep.PingMs = time.Since(start).Milliseconds()
			} else {
				dbDep.Status = "error"
			}
		}
	}
	report.Dependencies["database"] = dbDep

	redisDep := DepStatus{Status: "disabled"}
	traffic := TrafficInfo{SuccessRate: "100", AvgResponseTime: 0}
	startMs := processStart.UnixMilli()
	if rdb != nil {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err == nil {
			redisDep.Status = "connected"
			redisDep.PingMs = time.Since(start).Milliseconds()
			startMs = readTraffic(ctx, rdb, &traffic, startMs)
		} else {
			redisDep.Status = "error"
		}
	}
	report.Dependencies["redis"] = redisDep
	report.Traffic = traffic

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := (time.Now().UnixMilli() - startMs) / 1000
	if uptime < 0 {
		uptime = 0
	}
	report.Runtime = RuntimeInfo{
		UptimeSeconds: uptime,
		Memory: MemoryInfo{
			Alloc:    int(m.Alloc / 1024 / 1024),
			HeapUsed: int(m.HeapInuse / 1024 / 1024),
			Sys:      int(m.Sys / 1024 / 1024),
		},
		Goroutines: runtime.NumGoroutine(),
		Platform:   runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:  runtime.Version(),
	}

	report.Status = "ok"
	if dbDep.Status != database.Connected.String() || redisDep.Status == "error" {
		report.Status = "issue"
	}
	return report
}

func readTraffic(ctx context.Context, rdb *redis.Client, t *TrafficInfo, startMs int64) int64 {
	vals, err := rdb.MGet(ctx,
		middleware.KeyReqTotal,
		middleware.KeyReqErrors,
		middleware.KeyResTime,
		middleware.KeyResCount,
		middleware.KeyStartTime,
		middleware.KeyLastReq,
	).Result()
	if err != nil {
		return startMs
	}
	str := func(i int) string {
		s, _ := vals[i].(string)
		return s
	}

	if s := str(4); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			startMs = v
		}
	} else {
		rdb.SetNX(ctx, middleware.KeyStartTime, startMs, 0)
	}

	t.TotalRequests, _ = strconv.Atoi(str(0))
	t.FailedCount, _ = strconv.Atoi(str(1))
	t.SuccessCount = t.TotalRequests - t.FailedCount
	if t.TotalRequests > 0 {
		t.SuccessRate = strconv.FormatFloat(float64(t.SuccessCount)/float64(t.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(str(2), 64)
	count, _ := strconv.Atoi(str(3))
	if count > 0 {
		t.AvgResponseTime = strconv.FormatFloat(timeSum/float64(count), 'f', 2, 64)
	}
	if s := str(5); s != "" {
		var last map[string]interface{}
		if json.Unmarshal([]byte(s), &last) == nil {
			t.LastRequest = last
		}
	}
	return startMs
}

// Errors returns the most recent 5xx entries, newest first.
func Errors(ctx context.Context, rdb *redis.Client) ([]middleware.ErrorEntry, error) {
	out := make([]middleware.ErrorEntry, 0)
	if rdb == nil {
		return out, nil
	}
	raw, err := rdb.LRange(ctx, middleware.KeyErrorLog, 0, middleware.ErrorLogSize-1).Result()
	if err != nil {
		return out, err
	}
	for _, s := range raw {
		var e middleware.ErrorEntry
		if json.Unmarshal([]byte(s), &e) == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// Reset clears the traffic counters and restarts the uptime clock.
func Reset(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Del(ctx, middleware.StatsKeys...).Err(); err != nil {
		return err
	}
	return rdb.Set(ctx, middleware.KeyStartTime, strconv.FormatInt(time.Now().UnixMilli(), 10), 0).Err()
}
