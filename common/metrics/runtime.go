package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeMetrics observes the Go runtime on every collection. GC pauses that happened
// since the previous collection are fed into a histogram.
type RuntimeMetrics struct {
	goroutines  metric.Int64ObservableGauge
	heapAlloc   metric.Int64ObservableGauge
	heapObjects metric.Int64ObservableGauge
	gcCount     metric.Int64ObservableCounter
	uptime      metric.Float64ObservableCounter
	gcPause     metric.Float64Histogram

	startTime time.Time

	mu     sync.Mutex
	seenGC uint32
}

func NewRuntimeMetrics(meter metric.Meter) (*RuntimeMetrics, error) {
	rm := &RuntimeMetrics{startTime: time.Now()}

	var err error
	rm.goroutines, err = meter.Int64ObservableGauge(
		"runtime.go.goroutines",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("{goroutine}"),
	)
	if err != nil {
		return nil, err
	}

	rm.heapAlloc, err = meter.Int64ObservableGauge(
		"runtime.go.mem.heap_alloc",
		metric.WithDescription("Bytes of allocated heap objects"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	rm.heapObjects, err = meter.Int64ObservableGauge(
		"runtime.go.mem.heap_objects",
		metric.WithDescription("Number of allocated heap objects"),
		metric.WithUnit("{object}"),
	)
	if err != nil {
		return nil, err
	}

	rm.gcCount, err = meter.Int64ObservableCounter(
		"runtime.go.gc.count",
		metric.WithDescription("Number of completed GC cycles"),
		metric.WithUnit("{gc}"),
	)
	if err != nil {
		return nil, err
	}

	rm.uptime, err = meter.Float64ObservableCounter(
		"service.uptime",
		metric.WithDescription("Service uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	// 1µs to 100ms; stop-the-world pauses rarely leave that range.
	rm.gcPause, err = meter.Float64Histogram(
		"runtime.go.gc.pause_duration",
		metric.WithDescription("GC stop-the-world pause duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.000001, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.1),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(rm.observe,
		rm.goroutines,
		rm.heapAlloc,
		rm.heapObjects,
		rm.gcCount,
		rm.uptime,
	)
	if err != nil {
		return nil, err
	}

	return rm, nil
}

func (rm *RuntimeMetrics) observe(ctx context.Context, o metric.Observer) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	o.ObserveInt64(rm.goroutines, int64(runtime.NumGoroutine()))
	o.ObserveInt64(rm.heapAlloc, int64(m.HeapAlloc))
	o.ObserveInt64(rm.heapObjects, int64(m.HeapObjects))
	o.ObserveInt64(rm.gcCount, int64(m.NumGC))
	o.ObserveFloat64(rm.uptime, time.Since(rm.startTime).Seconds())

	rm.recordPauses(ctx, &m)
	return nil
}

// recordPauses reports cycles completed since the last call. PauseNs is a ring of the
// most recent 256 pauses, so older cycles are lost after a long gap.
func (rm *RuntimeMetrics) recordPauses(ctx context.Context, m *runtime.MemStats) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	ring := uint32(len(m.PauseNs))
	from := rm.seenGC
	if m.NumGC-from > ring {
		from = m.NumGC - ring
	}
	for n := from; n < m.NumGC; n++ {
		pause := time.Duration(m.PauseNs[n%ring])
		rm.gcPause.Record(ctx, pause.Seconds())
	}
	rm.seenGC = m.NumGC
}
