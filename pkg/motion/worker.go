package motion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

// ResultHandler receives the outcome of every batch the worker ran.
type ResultHandler func(result Result)

// Worker runs batches on a single goroutine, which makes it the only writer
// of the driver's State. The newest batch always wins: submitting while a
// move is in flight cancels it at the next micro-step, and a batch still
// waiting to start is replaced rather than queued.
type Worker struct {
	name          string
	driver        *SmoothDriver
	logger        log.Logger
	resultHandler ResultHandler

	mu         sync.Mutex
	running    bool
	pending    []protocol.ServoTarget
	hasPending bool
	cancel     context.CancelFunc

	wake    chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	metrics *WorkerMetrics
}

// WorkerMetrics tracks batch throughput of a Worker.
type WorkerMetrics struct {
	SubmittedCount  int64 `json:"submitted"`
	CompletedCount  int64 `json:"completed"`
	PreemptedCount  int64 `json:"preempted"`
	CoalescedCount  int64 `json:"coalesced"`
	IgnoredCount    int64 `json:"ignored"`
	WriteErrorCount int64 `json:"write_errors"`
	SkippedCount    int64 `json:"skipped"`
	MicroSteps      int64 `json:"micro_steps"`
	LastBatchTime   int64 `json:"last_batch_time"`
	MoveTimeAvg     int64 `json:"move_time_avg_us"`
	MoveTimeMax     int64 `json:"move_time_max_us"`
	mu              sync.Mutex
}

// NewWorker creates a stopped worker around driver.
func NewWorker(name string, driver *SmoothDriver, logger log.Logger) *Worker {
	return &Worker{
		name:    name,
		driver:  driver,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		metrics: &WorkerMetrics{},
	}
}

// SetResultHandler sets the function called after every batch.
func (w *Worker) SetResultHandler(handler ResultHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resultHandler = handler
}

// Submit hands a batch to the worker without blocking. It returns false when
// the worker is not running. A batch that addresses no configured servo is
// ignored and leaves the move in flight untouched.
func (w *Worker) Submit(targets []protocol.ServoTarget) bool {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.logger.Warnf("%s worker not running, discarding batch of %d targets", w.name, len(targets))
		return false
	}
	if !w.addressesConfigured(targets) {
		w.mu.Unlock()
		w.metrics.mu.Lock()
		w.metrics.IgnoredCount++
		w.metrics.mu.Unlock()
		w.logger.Warnf("%s worker ignoring batch of %d targets: no configured servo addressed", w.name, len(targets))
		return true
	}
	coalesced := w.hasPending
	w.pending = targets
	w.hasPending = true
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	w.metrics.mu.Lock()
	w.metrics.SubmittedCount++
	if coalesced {
		w.metrics.CoalescedCount++
	}
	w.metrics.mu.Unlock()
	if coalesced {
		w.logger.Debugf("%s worker replaced a batch that had not started", w.name)
	}

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

func (w *Worker) addressesConfigured(targets []protocol.ServoTarget) bool {
	state := w.driver.State()
	for _, t := range targets {
		if state.Configured(t.ServoKey) {
			return true
		}
	}
	return false
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.logger.Infof("Starting %s worker", w.name)

	w.wg.Add(1)
	go w.loop(w.stop)
}

// Stop cancels any move in flight, drops the pending batch and waits for the
// worker goroutine to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.pending, w.hasPending = nil, false
	if w.cancel != nil {
		w.cancel()
	}
	close(w.stop)
	w.mu.Unlock()

	w.logger.Infof("Stopping %s worker", w.name)
	w.wg.Wait()
	w.logger.Infof("%s worker stopped", w.name)

	w.logMetrics()
}

func (w *Worker) loop(stop <-chan struct{}) {
	defer w.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-w.wake:
		}

		w.mu.Lock()
		if !w.hasPending || !w.running {
			w.mu.Unlock()
			continue
		}
		targets := w.pending
		w.pending, w.hasPending = nil, false
		ctx, cancel := context.WithCancel(context.Background())
		w.cancel = cancel
		handler := w.resultHandler
		w.mu.Unlock()

		result, err := w.driver.Move(ctx, targets)

		w.mu.Lock()
		w.cancel = nil
		w.mu.Unlock()
		cancel()

		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Errorf("%s worker move failed: %v", w.name, err)
		}
		w.record(result)

		if handler != nil {
			handler(result)
		}
	}
}

func (w *Worker) record(result Result) {
	moveTime := result.Duration.Microseconds()

	w.metrics.mu.Lock()
	defer w.metrics.mu.Unlock()

	if result.Preempted {
		w.metrics.PreemptedCount++
	} else {
		w.metrics.CompletedCount++
	}
	w.metrics.WriteErrorCount += int64(len(result.Failed))
	w.metrics.SkippedCount += int64(len(result.Skipped))
	w.metrics.MicroSteps += int64(result.Steps)
	w.metrics.LastBatchTime = time.Now().UnixNano()

	if w.metrics.MoveTimeAvg == 0 {
		w.metrics.MoveTimeAvg = moveTime
	} else {
		// Simple moving average
		w.metrics.MoveTimeAvg = (w.metrics.MoveTimeAvg + moveTime) / 2
	}
	if moveTime > w.metrics.MoveTimeMax {
		w.metrics.MoveTimeMax = moveTime
	}
}

// GetMetrics returns a copy of the current metrics.
func (w *Worker) GetMetrics() WorkerMetrics {
	w.metrics.mu.Lock()
	defer w.metrics.mu.Unlock()

	return WorkerMetrics{
		SubmittedCount:  w.metrics.SubmittedCount,
		CompletedCount:  w.metrics.CompletedCount,
		PreemptedCount:  w.metrics.PreemptedCount,
		CoalescedCount:  w.metrics.CoalescedCount,
		IgnoredCount:    w.metrics.IgnoredCount,
		WriteErrorCount: w.metrics.WriteErrorCount,
		SkippedCount:    w.metrics.SkippedCount,
		MicroSteps:      w.metrics.MicroSteps,
		LastBatchTime:   w.metrics.LastBatchTime,
		MoveTimeAvg:     w.metrics.MoveTimeAvg,
		MoveTimeMax:     w.metrics.MoveTimeMax,
	}
}

func (w *Worker) logMetrics() {
	m := w.GetMetrics()
	w.logger.Infof("%s worker metrics: submitted=%d, completed=%d, preempted=%d, coalesced=%d, ignored=%d, write_errors=%d, avg_time=%dµs, max_time=%dµs",
		w.name, m.SubmittedCount, m.CompletedCount, m.PreemptedCount, m.CoalescedCount,
		m.IgnoredCount, m.WriteErrorCount, m.MoveTimeAvg, m.MoveTimeMax)
}

// Name returns the worker name.
func (w *Worker) Name() string {
	return w.name
}
