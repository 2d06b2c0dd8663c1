// Package metrics counts plugin events in a prometheus registry, fed through plugin.Trace hooks.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/damianoneill/netpush/plugin"
)

const namespace = "netpush"

// Collector holds the metrics of the plugins traced with its hooks.
type Collector struct {
	reg *prometheus.Registry

	connects        *prometheus.CounterVec
	connectDuration *prometheus.HistogramVec
	lockRetries     prometheus.Counter
	steps           *prometheus.CounterVec
	remediations    *prometheus.CounterVec
	transactions    *prometheus.CounterVec
	txDuration      prometheus.Histogram
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
}

// NewCollector delivers a Collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connects_total", Help: "Session attempts by family and result.",
		}, []string{"family", "result"}),
		connectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "connect_duration_seconds", Help: "Time taken to open a session.",
			Buckets: prometheus.DefBuckets,
		}, []string{"family"}),
		lockRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "lock_retries_total", Help: "Failed lock attempts that were retried.",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commit_steps_total", Help: "Commit protocol steps by step and result.",
		}, []string{"step", "result"}),
		remediations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "remediations_total", Help: "Remediation actions by step and result.",
		}, []string{"step", "result"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transactions_total", Help: "Commit protocol runs by failure kind.",
		}, []string{"kind"}),
		txDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "transaction_duration_seconds", Help: "Time taken by a commit protocol run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total", Help: "Commands executed by family and output classification.",
		}, []string{"family", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "command_duration_seconds", Help: "Time taken by a command.",
			Buckets: prometheus.DefBuckets,
		}, []string{"family"}),
	}
	c.reg.MustRegister(c.connects, c.connectDuration, c.lockRetries, c.steps, c.remediations,
		c.transactions, c.txDuration, c.commands, c.commandDuration)
	return c
}

// Registry delivers the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// WriteTextfile writes the metrics in the text format read by the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, c.reg), "failed to write metrics to %s", path)
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Trace delivers the hooks that feed the collector. Hooks are safe for concurrent use.
func (c *Collector) Trace() *plugin.Trace {
	return &plugin.Trace{
		ConnectDone: func(family, target string, err error, d time.Duration) {
			c.connects.WithLabelValues(family, result(err)).Inc()
			c.connectDuration.WithLabelValues(family).Observe(d.Seconds())
		},
		LockRetry: func(target string, attempt int, err error, wait time.Duration) {
			c.lockRetries.Inc()
		},
		StepDone: func(attempt *plugin.CommitAttempt, step plugin.Step, err error, d time.Duration) {
			c.steps.WithLabelValues(step.String(), result(err)).Inc()
		},
		RemediationDone: func(attempt *plugin.CommitAttempt, step plugin.Step, err error) {
			c.remediations.WithLabelValues(step.String(), result(err)).Inc()
		},
		TransactionDone: func(attempt *plugin.CommitAttempt, err error, d time.Duration) {
			kind := "none"
			if err != nil {
				kind = plugin.KindOf(err).String()
			}
			c.transactions.WithLabelValues(kind).Inc()
			c.txDuration.Observe(d.Seconds())
		},
		CommandDone: func(family, target string, outcome plugin.Outcome, err error, d time.Duration) {
			c.commands.WithLabelValues(family, outcome.String()).Inc()
			c.commandDuration.WithLabelValues(family).Observe(d.Seconds())
		},
	}
}
