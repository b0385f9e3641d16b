package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sandeepkv93/otp-account-service/internal/database"
)

type mockChecker struct {
	result CheckResult
}

func (m mockChecker) Check(context.Context) CheckResult {
	return m.result
}

func TestProbeRunnerReady(t *testing.T) {
	runner := NewProbeRunner(200*time.Millisecond, 0,
		mockChecker{result: CheckResult{Name: "db", Healthy: true}},
		nil,
		mockChecker{result: CheckResult{Name: "redis", Healthy: true}},
	)
	ready, results := runner.Ready(context.Background())
	if !ready {
		t.Fatal("expected ready")
	}
	if len(results) != 2 {
		t.Fatalf("expected nil checker to be skipped, got %d results", len(results))
	}
}

func TestProbeRunnerUnready(t *testing.T) {
	runner := NewProbeRunner(200*time.Millisecond, 0,
		mockChecker{result: CheckResult{Name: "db", Healthy: true}},
		mockChecker{result: CheckResult{Name: "redis", Healthy: false, Error: errors.New("down").Error()}},
	)
	ready, results := runner.Ready(context.Background())
	if ready {
		t.Fatal("expected unready")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestProbeRunnerStartupGrace(t *testing.T) {
	runner := NewProbeRunner(200*time.Millisecond, 2*time.Second,
		mockChecker{result: CheckResult{Name: "db", Healthy: true}},
	)
	ready, results := runner.Ready(context.Background())
	if ready {
		t.Fatal("expected unready during grace period")
	}
	if len(results) != 1 || results[0].Name != "startup_grace" {
		t.Fatalf("unexpected grace results: %+v", results)
	}

	runner.now = func() time.Time { return runner.startedAt.Add(3 * time.Second) }
	if ready, _ := runner.Ready(context.Background()); !ready {
		t.Fatal("expected ready after grace period")
	}
}

func TestReadyHandlerStatusCodes(t *testing.T) {
	for _, tc := range []struct {
		healthy bool
		want    int
	}{{true, http.StatusOK}, {false, http.StatusServiceUnavailable}} {
		runner := NewProbeRunner(time.Second, 0, mockChecker{result: CheckResult{Name: "db", Healthy: tc.healthy}})
		rr := httptest.NewRecorder()
		runner.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		if rr.Code != tc.want {
			t.Fatalf("healthy=%v status=%d want %d", tc.healthy, rr.Code, tc.want)
		}
	}

	rr := httptest.NewRecorder()
	LiveHandler(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	var env map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil || rr.Code != http.StatusOK {
		t.Fatalf("live status=%d err=%v", rr.Code, err)
	}
}

func TestDependencyCheckersAgainstRealBackends(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:health_checker?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	dbChecker := NewDBChecker(db)
	if res := dbChecker.Check(context.Background()); res.Healthy || !strings.Contains(res.Error, "schema not migrated") {
		t.Fatalf("expected unmigrated db to be unready, got %+v", res)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res := dbChecker.Check(context.Background()); !res.Healthy {
		t.Fatalf("expected healthy db, got %+v", res)
	}

	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	checker := NewRedisChecker(client, "oas:health")
	if res := checker.Check(context.Background()); !res.Healthy {
		t.Fatalf("expected healthy redis, got %+v", res)
	}
	if !m.Exists("oas:health:probe") {
		t.Fatal("expected probe key under the namespace")
	}
	m.Close()
	if res := checker.Check(context.Background()); res.Healthy || res.Error == "" {
		t.Fatalf("expected unhealthy redis after shutdown, got %+v", res)
	}

	if NewDBChecker(nil) != nil || NewRedisChecker(nil, "") != nil {
		t.Fatal("nil backends must produce nil checkers")
	}
}
