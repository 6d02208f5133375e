package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	sent          *prometheus.CounterVec
	failed        prometheus.Counter
	confirmations prometheus.Counter
	remoteEvents  *prometheus.CounterVec
	historyPages  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_messages_sent_total",
			Help: "Messages handed to the server, by delivery path.",
		}, []string{"path"}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_messages_failed_total",
			Help: "Messages whose delivery failed.",
		}),
		confirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_confirmations_total",
			Help: "Pending messages reconciled with a server message.",
		}),
		remoteEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_remote_events_total",
			Help: "Push events received, by event type.",
		}, []string{"type"}),
		historyPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_history_pages_total",
			Help: "History pages applied to a timeline.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sent, m.failed, m.confirmations, m.remoteEvents, m.historyPages)
	}
	return m
}

const (
	pathPush = "push"
	pathREST = "rest"
)
