package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	defaultDBTimeout    = 500 * time.Millisecond
	defaultRedisTimeout = 300 * time.Millisecond
)

// Checker probes the dependencies readiness reports on.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler serves the liveness and readiness endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

// readiness is the JSON body of /readyz. Failed probes carry the error
// text in place of "ok".
type readiness struct {
	Status string `json:"status"`
	DB     string `json:"db"`
	Redis  string `json:"redis"`
}

// Live answers 200 as long as the process can serve requests.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes the database and Redis. Any failed probe degrades the
// report and flips the status code to 503 so load balancers stop routing.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}

	report := readiness{Status: "ready", DB: "ok", Redis: "ok"}
	code := http.StatusOK

	if err := h.Checker.PingDB(r.Context(), orDefault(h.DBTimeout, defaultDBTimeout)); err != nil {
		report.DB = err.Error()
	}
	if err := h.Checker.PingRedis(r.Context(), orDefault(h.RedisTimeout, defaultRedisTimeout)); err != nil {
		report.Redis = err.Error()
	}
	if report.DB != "ok" || report.Redis != "ok" {
		report.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
