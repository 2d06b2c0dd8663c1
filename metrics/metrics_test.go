package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/netpush/plugin"
)

type fakeTransaction struct {
	loadErr error
}

func (f *fakeTransaction) Lock() error         { return nil }
func (f *fakeTransaction) Discard() error      { return nil }
func (f *fakeTransaction) Load(_ string) error { return f.loadErr }
func (f *fakeTransaction) Validate() error     { return nil }
func (f *fakeTransaction) Commit() error       { return nil }
func (f *fakeTransaction) Unlock() error       { return nil }
func (f *fakeTransaction) Close() error        { return errors.New("already closed") }

func TestCommitProtocolMetrics(t *testing.T) {
	c := NewCollector()
	ctx := plugin.WithTrace(context.Background(), c.Trace())
	protocol := &plugin.CommitProtocol{Retry: plugin.LockRetryPolicy{MaxAttempts: 1}, Target: "r1"}

	_, err := protocol.Run(ctx, &fakeTransaction{}, "set system host-name r1")
	assert.NoError(t, err)
	_, err = protocol.Run(ctx, &fakeTransaction{
		loadErr: plugin.NewError(plugin.KindRejected, "load", "r1", errors.New("syntax error")),
	}, "set bogus")
	assert.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transactions.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transactions.WithLabelValues("ConfigLoadFailure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.steps.WithLabelValues("lock", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("load", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("commit", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.remediations.WithLabelValues("discard", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.remediations.WithLabelValues("close", "failure")))
	assert.Equal(t, uint64(2), sampleCount(t, c, "netpush_transaction_duration_seconds"))
}

// sampleCount delivers the number of observations of the histogram called name.
func sampleCount(t *testing.T, c *Collector, name string) uint64 {
	families, err := c.Registry().Gather()
	assert.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	t.Fatalf("%s was not gathered", name)
	return 0
}

func TestHooks(t *testing.T) {
	c := NewCollector()
	trace := c.Trace()

	trace.ConnectDone("junos", "r1", nil, time.Second)
	trace.ConnectDone("junos", "r2", errors.New("refused"), time.Second)
	trace.LockRetry("r1", 1, errors.New("locked"), time.Second)
	trace.CommandDone("shell", "sw1", plugin.OutcomeInvalid, errors.New("invalid"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.connects.WithLabelValues("junos", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connects.WithLabelValues("junos", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lockRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("shell", "invalid")))

	expected := `
# HELP netpush_lock_retries_total Failed lock attempts that were retried.
# TYPE netpush_lock_retries_total counter
netpush_lock_retries_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "netpush_lock_retries_total"))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.Trace().LockRetry("r1", 1, errors.New("locked"), time.Second)

	path := filepath.Join(t.TempDir(), "netpush.prom")
	assert.NoError(t, c.WriteTextfile(path))
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "netpush_lock_retries_total 1")

	assert.Error(t, c.WriteTextfile(filepath.Join(t.TempDir(), "missing", "netpush.prom")))
}
