package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "lighter_sdk"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry          *prometheus.Registry
	ordersSubmitted   prometheus.Counter
	ordersFailed      prometheus.Counter
	ordersRejected    prometheus.Counter
	cancelsSubmitted  prometheus.Counter
	bootstrapAttempts prometheus.Counter
	httpRetries       prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry:          registry,
		ordersSubmitted:   newCounter("orders_submitted_total", "Total number of orders accepted by the exchange."),
		ordersFailed:      newCounter("orders_failed_total", "Total number of order submissions that failed."),
		ordersRejected:    newCounter("orders_rejected_total", "Total number of orders rejected by local validation."),
		cancelsSubmitted:  newCounter("cancels_submitted_total", "Total number of cancels accepted by the exchange."),
		bootstrapAttempts: newCounter("bootstrap_attempts_total", "Total number of account provisioning attempts."),
		httpRetries:       newCounter("http_retries_total", "Total number of retried REST requests."),
	}
	registry.MustRegister(p.ordersSubmitted, p.ordersFailed, p.ordersRejected, p.cancelsSubmitted, p.bootstrapAttempts, p.httpRetries)
	p.Metrics = &Metrics{
		OrdersSubmitted:   promCounter{p.ordersSubmitted},
		OrdersFailed:      promCounter{p.ordersFailed},
		OrdersRejected:    promCounter{p.ordersRejected},
		CancelsSubmitted:  promCounter{p.cancelsSubmitted},
		BootstrapAttempts: promCounter{p.bootstrapAttempts},
		HTTPRetries:       promCounter{p.httpRetries},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
