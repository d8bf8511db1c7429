package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestMetricsExposed(t *testing.T) {
	InitMetrics()
	InitMetrics()

	RecordMessageSent("test-c", "INFORM")
	RecordMessageDelivered("test-a")
	RecordMessageDropped("test-a")
	RecordUndeliverable("test-c")
	RecordBehaviorStarted("test-a")
	RecordBehaviorCompleted("test-a")
	RecordAction("test-a", time.Millisecond)
	RecordStateChange("", "INIT")
	RecordStateChange("INIT", "RUNNING")
	RecordAgentDeath("test-a")
	SetIdleAgents("test-c", 3)
	SetVirtualTime(1234)
	RecordSimEvent("agent")

	code, body := get(t, MetricsHandler(), "/metrics")
	require.Equal(t, http.StatusOK, code)
	for _, want := range []string{
		`agentrt_messages_sent_total{container="test-c",performative="INFORM"}`,
		`agentrt_messages_delivered_total{agent="test-a"}`,
		`agentrt_messages_dropped_total{agent="test-a"}`,
		`agentrt_messages_undeliverable_total{container="test-c"}`,
		`agentrt_behavior_action_duration_seconds_count{agent="test-a"}`,
		`agentrt_agent_deaths_total{agent="test-a"}`,
		`agentrt_idle_agents{container="test-c"} 3`,
		`agentrt_virtual_time_milliseconds 1234`,
		`agentrt_sim_events_total{kind="agent"}`,
		`agentrt_agents{state="RUNNING"}`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestHealthChecker(t *testing.T) {
	tests := []struct {
		name   string
		checks []*HealthCheck
		want   HealthStatus
	}{
		{
			name: "no checks",
			want: HealthStatusHealthy,
		},
		{
			name: "passing",
			checks: []*HealthCheck{
				{Name: "ok", CheckFunc: func(context.Context) error { return nil }, Critical: true},
			},
			want: HealthStatusHealthy,
		},
		{
			name: "non-critical failure degrades",
			checks: []*HealthCheck{
				{Name: "ok", CheckFunc: func(context.Context) error { return nil }, Critical: true},
				{Name: "flaky", CheckFunc: func(context.Context) error { return errors.New("slow") }},
			},
			want: HealthStatusDegraded,
		},
		{
			name: "critical failure",
			checks: []*HealthCheck{
				{Name: "flaky", CheckFunc: func(context.Context) error { return errors.New("slow") }},
				{Name: "core", CheckFunc: func(context.Context) error { return errors.New("down") }, Critical: true},
			},
			want: HealthStatusUnhealthy,
		},
		{
			name: "timeout",
			checks: []*HealthCheck{
				{
					Name: "hang",
					CheckFunc: func(ctx context.Context) error {
						<-ctx.Done()
						return ctx.Err()
					},
					Timeout:  10 * time.Millisecond,
					Critical: true,
				},
			},
			want: HealthStatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			for _, c := range tt.checks {
				hc.RegisterCheck(c)
			}
			resp := hc.Check(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
			assert.Positive(t, resp.System.NumCPU)
		})
	}
}

func TestRunningCheck(t *testing.T) {
	var running atomic.Bool
	hc := NewHealthChecker()
	hc.RegisterCheck(RunningCheck("platform", running.Load))

	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	assert.Equal(t, "platform not running", resp.Checks["platform"].Message)

	running.Store(true)
	resp = hc.Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, resp.Status)
	assert.Equal(t, "OK", resp.Checks["platform"].Message)
}

func TestServerHandler(t *testing.T) {
	var running atomic.Bool
	hc := NewHealthChecker()
	hc.RegisterCheck(RunningCheck("platform", running.Load))
	h := NewServer(0, hc).Handler()

	code, body := get(t, h, "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"alive"}`, body)

	code, body = get(t, h, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"status":"not ready"}`, body)

	code, body = get(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)

	running.Store(true)
	code, _ = get(t, h, "/health/ready")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	assert.NoError(t, NewServer(0, nil).Shutdown(context.Background()))
}
