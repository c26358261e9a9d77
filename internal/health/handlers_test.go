package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haulpoint/backend-haul/internal/health"
)

type fakeChecker struct {
	dbErr    error
	redisErr error
}

func (f fakeChecker) PingDB(context.Context, time.Duration) error    { return f.dbErr }
func (f fakeChecker) PingRedis(context.Context, time.Duration) error { return f.redisErr }

func getReady(t *testing.T, h health.Handler) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode readiness body: %v", err)
	}
	return rr, body
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("got %d %q", rr.Code, rr.Body.String())
	}
}

func TestReadyAllHealthy(t *testing.T) {
	rr, body := getReady(t, health.Handler{Checker: fakeChecker{}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if body["status"] != "ready" || body["db"] != "ok" || body["redis"] != "ok" {
		t.Fatalf("unexpected report %#v", body)
	}
}

func TestReadyDegradedOnDBFailure(t *testing.T) {
	rr, body := getReady(t, health.Handler{Checker: fakeChecker{dbErr: errors.New("connection refused")}})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rr.Code)
	}
	if body["status"] != "degraded" || body["db"] != "connection refused" || body["redis"] != "ok" {
		t.Fatalf("unexpected report %#v", body)
	}
}

func TestReadyDegradedOnRedisFailure(t *testing.T) {
	rr, body := getReady(t, health.Handler{Checker: fakeChecker{redisErr: errors.New("dial timeout")}})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rr.Code)
	}
	if body["redis"] != "dial timeout" {
		t.Fatalf("unexpected report %#v", body)
	}
}

func TestReadyWithoutChecker(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rr.Code)
	}
}
