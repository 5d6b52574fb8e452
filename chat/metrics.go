package chat

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the chat client's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	MessagesReceived   prometheus.Counter
	MessagesSent       *prometheus.CounterVec
	HistoryPages       prometheus.Counter
	TransportErrors    prometheus.Counter
	NotificationsShown prometheus.Counter
	Connected          prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sgchat",
			Name:      "messages_received_total",
			Help:      "Messages delivered by the live transport.",
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sgchat",
			Name:      "messages_sent_total",
			Help:      "Messages sent, by delivery path.",
		}, []string{"path"}),
		HistoryPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sgchat",
			Name:      "history_pages_total",
			Help:      "History pages applied to the timeline.",
		}),
		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sgchat",
			Name:      "transport_errors_total",
			Help:      "Connect failures and gateway error events.",
		}),
		NotificationsShown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sgchat",
			Name:      "notifications_shown_total",
			Help:      "Notifications handed to the host.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sgchat",
			Name:      "connected",
			Help:      "1 while the live transport is connected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.MessagesReceived,
			m.MessagesSent,
			m.HistoryPages,
			m.TransportErrors,
			m.NotificationsShown,
			m.Connected,
		)
	}
	return m
}

func (m *Metrics) messageReceived() {
	if m != nil {
		m.MessagesReceived.Inc()
	}
}

func (m *Metrics) messageSent(path string) {
	if m != nil {
		m.MessagesSent.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) historyPage() {
	if m != nil {
		m.HistoryPages.Inc()
	}
}

func (m *Metrics) transportError() {
	if m != nil {
		m.TransportErrors.Inc()
	}
}

func (m *Metrics) notificationShown() {
	if m != nil {
		m.NotificationsShown.Inc()
	}
}

func (m *Metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}
