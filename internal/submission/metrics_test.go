package submission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"finitefield.org/trademark-web/internal/backup"
	"finitefield.org/trademark-web/internal/catalog"
)

type recordingMeter struct {
	noop.Meter

	mu     sync.Mutex
	totals map[string]int64
	attrs  map[string][]attribute.Set
}

func newRecordingMeter() *recordingMeter {
	return &recordingMeter{totals: map[string]int64{}, attrs: map[string][]attribute.Set{}}
}

func (m *recordingMeter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return &recordingCounter{name: name, meter: m}, nil
}

func (m *recordingMeter) total(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[name]
}

type recordingCounter struct {
	noop.Int64Counter
	name  string
	meter *recordingMeter
}

func (c *recordingCounter) Add(_ context.Context, incr int64, opts ...metric.AddOption) {
	cfg := metric.NewAddConfig(opts)
	c.meter.mu.Lock()
	defer c.meter.mu.Unlock()
	c.meter.totals[c.name] += incr
	c.meter.attrs[c.name] = append(c.meter.attrs[c.name], cfg.Attributes())
}

func TestLenientFailureIsCounted(t *testing.T) {
	meter := newRecordingMeter()
	p := NewPipeline(Deps{
		Sender:  &countingSender{err: errors.New("connection refused")},
		Backups: backup.NewMemoryStore(),
		Catalog: catalog.MustDefault(),
		Policy:  PolicyLenient,
		Now:     func() time.Time { return fixedNow },
		NewID:   func() string { return "01JTESTSEARCH" },
		Meter:   meter,
	})

	res, err := p.Submit(context.Background(), completeForm(t))
	require.NoError(t, err)
	require.False(t, res.Delivered)

	require.EqualValues(t, 1, meter.total("submission.delivery_failures"))
	require.Zero(t, meter.total("submission.deliveries"))
	set := meter.attrs["submission.delivery_failures"][0]
	swallowed, ok := set.Value("swallowed")
	require.True(t, ok)
	require.True(t, swallowed.AsBool())
	policy, _ := set.Value("policy")
	require.Equal(t, "lenient", policy.AsString())
}

func TestStrictFailureAndDeliveryAreCounted(t *testing.T) {
	meter := newRecordingMeter()
	sender := &countingSender{err: errors.New("timeout")}
	p := NewPipeline(Deps{
		Sender:  sender,
		Backups: backup.NewMemoryStore(),
		Catalog: catalog.MustDefault(),
		Policy:  PolicyStrict,
		Now:     func() time.Time { return fixedNow },
		NewID:   func() string { return "01JTESTSEARCH" },
		Meter:   meter,
	})

	_, err := p.Submit(context.Background(), completeForm(t))
	require.ErrorIs(t, err, ErrDeliveryFailed)
	swallowed, _ := meter.attrs["submission.delivery_failures"][0].Value("swallowed")
	require.False(t, swallowed.AsBool())

	sender.err = nil
	_, err = p.Submit(context.Background(), completeForm(t))
	require.NoError(t, err)
	require.EqualValues(t, 1, meter.total("submission.delivery_failures"))
	require.EqualValues(t, 1, meter.total("submission.deliveries"))
}
