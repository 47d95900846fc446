package billing

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	billsRequested  prometheus.Counter
	paymentsMatched prometheus.Counter
	expired         prometheus.Counter
	failures        *prometheus.CounterVec
}

// Failure reasons reported by payablesubs_process_failures_total
const (
	reasonNoPayerAccount = "no_payer_account"
	reasonNotify         = "notify"
	reasonOther          = "other"
)

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		billsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payablesubs",
			Name:      "bills_requested_total",
			Help:      "Money requests sent to the payment ledger.",
		}),
		paymentsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payablesubs",
			Name:      "payments_matched_total",
			Help:      "Ledger transactions recorded as payments.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "payablesubs",
			Name:      "subscriptions_expired_total",
			Help:      "Subscriptions expired after their grace period.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payablesubs",
			Name:      "process_failures_total",
			Help:      "Due subscriptions that could not be processed.",
		}, []string{"reason"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.billsRequested, m.paymentsMatched, m.expired, m.failures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
