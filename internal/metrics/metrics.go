package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shift_exchange"

var (
	requestTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_transitions_total",
			Help:      "Count of approval request state transitions by kind and resulting status.",
		},
		[]string{"kind", "status"},
	)
	notificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Count of notifications that could not be published.",
		},
		[]string{"event"},
	)
	conversationCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_commands_total",
			Help:      "Count of top-level conversation commands received.",
		},
		[]string{"command"},
	)
)

var registerMetrics sync.Once

// Register 将所有指标注册到默认的 registry 中，可以重复调用
func Register() {
	registerMetrics.Do(func() {
		prometheus.MustRegister(requestTransitions)
		prometheus.MustRegister(notificationFailures)
		prometheus.MustRegister(conversationCommands)
	})
}

func RecordRequestTransition(kind, status string) {
	requestTransitions.WithLabelValues(kind, status).Inc()
}

func RecordNotificationFailure(event string) {
	notificationFailures.WithLabelValues(event).Inc()
}

func RecordConversationCommand(command string) {
	conversationCommands.WithLabelValues(command).Inc()
}
