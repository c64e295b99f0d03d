package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersSubmitted   Counter
	OrdersFailed      Counter
	OrdersRejected    Counter
	CancelsSubmitted  Counter
	BootstrapAttempts Counter
	HTTPRetries       Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersSubmitted:   n,
		OrdersFailed:      n,
		OrdersRejected:    n,
		CancelsSubmitted:  n,
		BootstrapAttempts: n,
		HTTPRetries:       n,
	}
}

// OrDefault returns m, or a no-op set when m is nil.
func OrDefault(m *Metrics) *Metrics {
	if m == nil {
		return NewNoop()
	}
	return m
}
