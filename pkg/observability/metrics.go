package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Messaging metrics
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_messages_sent_total",
			Help: "Total number of messages accepted by a container for routing",
		},
		[]string{"container", "performative"},
	)

	messagesDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_messages_delivered_total",
			Help: "Total number of messages queued at an agent",
		},
		[]string{"agent"},
	)

	messagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_messages_dropped_total",
			Help: "Total number of queued messages dropped on overflow",
		},
		[]string{"agent"},
	)

	messagesUndeliverableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_messages_undeliverable_total",
			Help: "Total number of messages whose recipient could not be resolved",
		},
		[]string{"container"},
	)

	// Behavior metrics
	behaviorsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_behaviors_started_total",
			Help: "Total number of behaviors started",
		},
		[]string{"agent"},
	)

	behaviorsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_behaviors_completed_total",
			Help: "Total number of behaviors that completed",
		},
		[]string{"agent"},
	)

	behaviorActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentrt_behavior_action_duration_seconds",
			Help:    "Wall clock duration of a single behavior action",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"agent"},
	)

	// Agent metrics
	agentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentrt_agents",
			Help: "Number of agents per lifecycle state",
		},
		[]string{"state"},
	)

	agentDeathsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_agent_deaths_total",
			Help: "Total number of agents terminated by an unrecovered fault",
		},
		[]string{"agent"},
	)

	idleAgents = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentrt_idle_agents",
			Help: "Number of idle agents per container",
		},
		[]string{"container"},
	)

	// Platform metrics
	virtualTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentrt_virtual_time_milliseconds",
			Help: "Current virtual time of the discrete-event platform",
		},
	)

	simEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentrt_sim_events_total",
			Help: "Total number of discrete-event callbacks fired",
		},
		[]string{"kind"},
	)

	initOnce sync.Once
)

// InitMetrics registers the runtime metrics with the default Prometheus registry
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			messagesSentTotal,
			messagesDeliveredTotal,
			messagesDroppedTotal,
			messagesUndeliverableTotal,
			behaviorsStartedTotal,
			behaviorsCompletedTotal,
			behaviorActionDuration,
			agentStates,
			agentDeathsTotal,
			idleAgents,
			virtualTime,
			simEventsTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordMessageSent records a message accepted for routing
func RecordMessageSent(container, performative string) {
	messagesSentTotal.WithLabelValues(container, performative).Inc()
}

// RecordMessageDelivered records a message queued at an agent
func RecordMessageDelivered(agent string) {
	messagesDeliveredTotal.WithLabelValues(agent).Inc()
}

// RecordMessageDropped records a queued message lost to overflow
func RecordMessageDropped(agent string) {
	messagesDroppedTotal.WithLabelValues(agent).Inc()
}

// RecordUndeliverable records a message with no resolvable recipient
func RecordUndeliverable(container string) {
	messagesUndeliverableTotal.WithLabelValues(container).Inc()
}

// RecordBehaviorStarted records a behavior start
func RecordBehaviorStarted(agent string) {
	behaviorsStartedTotal.WithLabelValues(agent).Inc()
}

// RecordBehaviorCompleted records a behavior completion
func RecordBehaviorCompleted(agent string) {
	behaviorsCompletedTotal.WithLabelValues(agent).Inc()
}

// RecordAction records the duration of one behavior action
func RecordAction(agent string, duration time.Duration) {
	behaviorActionDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordStateChange moves one agent between lifecycle state gauges. An empty
// from state only increments, an empty to state only decrements.
func RecordStateChange(from, to string) {
	if from != "" {
		agentStates.WithLabelValues(from).Dec()
	}
	if to != "" {
		agentStates.WithLabelValues(to).Inc()
	}
}

// RecordAgentDeath records an agent killed by a fault
func RecordAgentDeath(agent string) {
	agentDeathsTotal.WithLabelValues(agent).Inc()
}

// SetIdleAgents sets the idle agent gauge for a container
func SetIdleAgents(container string, count int) {
	idleAgents.WithLabelValues(container).Set(float64(count))
}

// SetVirtualTime sets the virtual clock gauge
func SetVirtualTime(ms int64) {
	virtualTime.Set(float64(ms))
}

// RecordSimEvent records a fired discrete-event callback
func RecordSimEvent(kind string) {
	simEventsTotal.WithLabelValues(kind).Inc()
}
