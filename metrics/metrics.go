// Package metrics records process counters through hashicorp/go-metrics.
package metrics

import (
	"time"

	gometrics "github.com/hashicorp/go-metrics"
)

// Counter and gauge names
var (
	BudgetsHeld             = []string{"budgets", "held"}
	DispatchAccepted        = []string{"dispatch", "accepted"}
	DispatchRefused         = []string{"dispatch", "refused"}
	FanoutCreated           = []string{"fanout", "created"}
	FanoutEvicted           = []string{"fanout", "evicted"}
	ProduceChecksumMismatch = []string{"produce", "checksum_mismatch"}
	StreamsClosed           = []string{"streams", "closed"}
	StreamsOpen             = []string{"streams", "open"}
)

// Setup installs a global in-memory sink aggregating over interval and
// returns it so callers can read or dump it.
func Setup(service string, interval time.Duration) (*gometrics.InmemSink, error) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	sink := gometrics.NewInmemSink(interval, 6*interval)
	conf := gometrics.DefaultConfig(service)
	conf.EnableHostname = false
	conf.EnableRuntimeMetrics = false
	if _, err := gometrics.NewGlobal(conf, sink); err != nil {
		return nil, err
	}
	return sink, nil
}

// Label builds a metric label.
func Label(name, value string) gometrics.Label {
	return gometrics.Label{Name: name, Value: value}
}

// Incr adds one to the counter key.
func Incr(key []string, labels ...gometrics.Label) {
	gometrics.IncrCounterWithLabels(key, 1, labels)
}

// Gauge sets the gauge key.
func Gauge(key []string, value float32, labels ...gometrics.Label) {
	gometrics.SetGaugeWithLabels(key, value, labels)
}

// Counter returns the total of the counter named flat (dot separated, with
// ";name=value" label suffixes) across all retained intervals of sink.
func Counter(sink *gometrics.InmemSink, flat string) float64 {
	var total float64
	for _, interval := range sink.Data() {
		interval.RLock()
		if sample, ok := interval.Counters[flat]; ok {
			total += sample.Sum
		}
		interval.RUnlock()
	}
	return total
}
