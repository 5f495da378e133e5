package notifier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
	"github.com/oshokin/alarm-core/internal/logger"
	"github.com/oshokin/alarm-core/internal/metrics"
)

const (
	// DefaultNotifyPeriod is the period of the incremental pass.
	DefaultNotifyPeriod = 500 * time.Millisecond
	// DefaultBroadcastPeriod is the period of the full broadcast.
	DefaultBroadcastPeriod = 10 * time.Second
)

// Source is the store the notifier reads from.
type Source interface {
	// DrainChanges empties the change log and returns the changed alarms with
	// the counters, or false when nothing changed.
	DrainChanges() ([]*alarm.Alarm, map[string]int, bool)
	// Snapshot recomputes validity and returns every alarm with the counters.
	Snapshot() ([]*alarm.Alarm, map[string]int)
}

// Notifier pushes payloads from a Source to the observers of a Registry.
type Notifier struct {
	source          Source
	registry        *Registry
	metrics         *metrics.Metrics
	notifyPeriod    time.Duration
	broadcastPeriod time.Duration

	notifyTask    task
	broadcastTask task

	// passMu orders passes against subscriptions so a new observer never
	// receives a payload older than its initial snapshot.
	passMu sync.Mutex

	// deliveries tracks in-flight Receive calls so Stop can wait for them.
	deliveries sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithNotifyPeriod sets the period of the incremental pass.
func WithNotifyPeriod(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.notifyPeriod = d
		}
	}
}

// WithBroadcastPeriod sets the period of the full broadcast.
func WithBroadcastPeriod(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.broadcastPeriod = d
		}
	}
}

// WithMetrics records notification passes and delivery failures in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// New creates a notifier. Its tasks do not run until Start is called.
func New(source Source, registry *Registry, opts ...Option) *Notifier {
	n := &Notifier{
		source:          source,
		registry:        registry,
		notifyPeriod:    DefaultNotifyPeriod,
		broadcastPeriod: DefaultBroadcastPeriod,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Registry returns the observer registry.
func (n *Notifier) Registry() *Registry {
	return n.registry
}

// Start launches both periodic tasks. A task that is already running is left alone.
func (n *Notifier) Start(ctx context.Context) {
	ctx = logger.WithName(ctx, "notifier")

	if n.notifyTask.start(ctx, n.notifyPeriod, func(ctx context.Context) { n.NotifyOnce(ctx) }) {
		logger.DebugKV(ctx, "Incremental notify task started", "period", n.notifyPeriod.String())
	}

	if n.broadcastTask.start(ctx, n.broadcastPeriod, n.BroadcastOnce) {
		logger.DebugKV(ctx, "Broadcast task started", "period", n.broadcastPeriod.String())
	}
}

// Running reports whether the incremental and broadcast tasks are running.
func (n *Notifier) Running() (bool, bool) {
	return n.notifyTask.running(), n.broadcastTask.running()
}

// Stop cancels both tasks and waits for them and for in-flight deliveries.
func (n *Notifier) Stop() {
	n.notifyTask.stop()
	n.broadcastTask.stop()
	n.deliveries.Wait()
}

// NotifyOnce sends the changed alarms to every observer and reports whether
// there was anything to send.
func (n *Notifier) NotifyOnce(ctx context.Context) bool {
	started := time.Now()

	n.passMu.Lock()
	defer n.passMu.Unlock()

	alarms, counters, ok := n.source.DrainChanges()
	if !ok {
		return false
	}

	n.fanOut(ctx, started, &Payload{
		Kind:     KindChanges,
		Alarms:   alarms,
		Counters: counters,
	})

	return true
}

// BroadcastOnce sends every alarm to every observer.
func (n *Notifier) BroadcastOnce(ctx context.Context) {
	started := time.Now()

	n.passMu.Lock()
	defer n.passMu.Unlock()

	alarms, counters := n.source.Snapshot()

	n.metrics.SetAlarms(len(alarms))
	n.metrics.SetCounters(counters)

	n.fanOut(ctx, started, &Payload{
		Kind:     KindBroadcast,
		Alarms:   alarms,
		Counters: counters,
	})
}

// Subscribe sends o a full snapshot and then registers it, so it does not
// have to wait for the next broadcast. Changes made after the snapshot reach o
// with the next incremental pass.
func (n *Notifier) Subscribe(ctx context.Context, o Observer) error {
	n.passMu.Lock()
	defer n.passMu.Unlock()

	alarms, counters := n.source.Snapshot()

	err := o.Receive(ctx, &Payload{
		Kind:     KindBroadcast,
		Alarms:   alarms,
		Counters: counters,
	})
	if err != nil {
		return err
	}

	n.registry.Register(o)
	n.metrics.SetObservers(n.registry.Len())

	return nil
}

// Unsubscribe deregisters o.
func (n *Notifier) Unsubscribe(o Observer) {
	n.registry.Deregister(o)
	n.metrics.SetObservers(n.registry.Len())
}

// fanOut delivers payload to every observer concurrently without waiting.
func (n *Notifier) fanOut(ctx context.Context, started time.Time, payload *Payload) {
	observers := n.registry.Observers()
	n.metrics.SetObservers(len(observers))

	if len(observers) == 0 {
		n.metrics.Notified(string(payload.Kind), started, 0)
		return
	}

	var (
		pending  sync.WaitGroup
		failures atomic.Int64
	)

	for _, o := range observers {
		pending.Add(1)
		n.deliveries.Add(1)

		go func() {
			defer n.deliveries.Done()
			defer pending.Done()

			if err := o.Receive(ctx, payload); err != nil {
				failures.Add(1)
				logger.WarnKV(ctx, "Failed to deliver payload",
					"observer", o.ID(),
					"kind", string(payload.Kind),
					"error", err)
			}
		}()
	}

	n.deliveries.Add(1)

	go func() {
		defer n.deliveries.Done()

		pending.Wait()
		n.metrics.Notified(string(payload.Kind), started, int(failures.Load()))
	}()
}
