package notifykit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notifykit/notifykit/logger"
)

// Standard queue IDs for the default three-lane topology.
const (
	QueueHigh   = "high"
	QueueMedium = "medium"
	QueueLow    = "low"
)

// routeQueueID maps a notification priority onto a queue ID. Collapsing
// high into the medium lane and medium/low into the low lane reproduces
// the established routing contract; see DESIGN.md.
func routeQueueID(p Priority) string {
	switch p {
	case PriorityCritical, PriorityUrgent:
		return QueueHigh
	case PriorityHigh:
		return QueueMedium
	default:
		return QueueLow
	}
}

// QueueMetrics captures a queue's running counters.
type QueueMetrics struct {
	Processed         uint64        `json:"processed"`
	Failed            uint64        `json:"failed"`
	Pending           int           `json:"pending"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
}

type queueItem struct {
	n       *Notification
	attempt int // completed delivery attempts
}

// queue is one named FIFO processing lane.
type queue struct {
	cfg      QueueConfig
	mu       sync.Mutex
	items    []queueItem
	draining bool

	processed uint64
	failed    uint64
	totalTime time.Duration
}

func (q *queue) push(item queueItem) (pending int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	return len(q.items)
}

// popOrIdle removes the head item, or clears the drain flag when the
// queue is empty. Pop and flag clear share one critical section so no
// push can land between "saw empty" and "stopped draining"; an enqueue
// racing the drain's exit always finds the flag clear and starts a new
// drain.
func (q *queue) popOrIdle() (queueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		q.draining = false
		return queueItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// tryStartDrain flips the drain flag, returning false when a drain loop
// is already in flight. Re-entrant drain calls are no-ops.
func (q *queue) tryStartDrain() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return false
	}
	q.draining = true
	return true
}

func (q *queue) stopDrain() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.draining = false
}

func (q *queue) recordSuccess(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.processed++
	q.totalTime += d
}

func (q *queue) recordFailure() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.failed++
}

func (q *queue) metrics() QueueMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := QueueMetrics{
		Processed: q.processed,
		Failed:    q.failed,
		Pending:   len(q.items),
	}
	if q.processed > 0 {
		m.AvgProcessingTime = q.totalTime / time.Duration(q.processed)
	}
	return m
}

// DeliverFunc attempts delivery of a notification across its channels.
// Concurrency bounds parallel per-channel sends.
type DeliverFunc func(ctx context.Context, n *Notification, concurrency int) error

// ExhaustFunc is called when a notification has used up its retry budget.
type ExhaustFunc func(ctx context.Context, n *Notification, lastErr error)

// QueueManager routes notifications into priority lanes and drains each
// lane FIFO with retry, pacing and metrics.
type QueueManager struct {
	queues  map[string]*queue
	deliver DeliverFunc
	exhaust ExhaustFunc
	events  *Bus
	logger  *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closed   atomic.Bool
	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
}

// NewQueueManager builds the lanes from configuration. The engine is
// unusable without queues, so an empty definition list fails fast.
func NewQueueManager(cfgs []QueueConfig, deliver DeliverFunc, exhaust ExhaustFunc, events *Bus, logger *slog.Logger) (*QueueManager, error) {
	if len(cfgs) == 0 {
		return nil, ErrNoQueues
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &QueueManager{
		queues:  make(map[string]*queue, len(cfgs)),
		deliver: deliver,
		exhaust: exhaust,
		events:  events,
		logger:  logger,
		timers:  make(map[*time.Timer]struct{}),
	}
	for _, cfg := range cfgs {
		m.queues[cfg.ID] = &queue{cfg: cfg}
	}
	return m, nil
}

// Start binds the manager to a context governing all drain loops.
func (m *QueueManager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
}

// Enqueue routes the notification by priority and kicks the lane's drain
// loop. Returns ErrQueueNotFound when routing resolves to an undefined
// lane and ErrEngineClosed after Close.
func (m *QueueManager) Enqueue(n *Notification) error {
	return m.enqueueItem(queueItem{n: n})
}

func (m *QueueManager) enqueueItem(item queueItem) error {
	if m.closed.Load() {
		return ErrEngineClosed
	}

	id := routeQueueID(item.n.Priority)
	q, ok := m.queues[id]
	if !ok {
		return ErrQueueNotFound
	}

	pending := q.push(item)
	if q.cfg.MaxPending > 0 && pending > q.cfg.MaxPending {
		m.events.Emit(Event{Kind: EventQueueFull, QueueID: id, Notification: item.n.clone()})
	}

	m.startDrain(q)
	return nil
}

func (m *QueueManager) startDrain(q *queue) {
	if !q.tryStartDrain() {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.drain(q)
	}()
}

// drain processes the lane strictly FIFO until empty. Exactly one drain
// loop runs per queue at a time.
func (m *QueueManager) drain(q *queue) {
	// The deferred release only fires on the abort paths; the empty-queue
	// exit hands the flag back inside popOrIdle and must not clear a
	// successor drain's claim.
	owns := true
	defer func() {
		if owns {
			q.stopDrain()
		}
	}()

	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if m.closed.Load() || ctx.Err() != nil {
			return
		}

		item, ok := q.popOrIdle()
		if !ok {
			owns = false
			m.events.Emit(Event{Kind: EventQueueEmpty, QueueID: q.cfg.ID})
			return
		}

		start := time.Now()
		err := m.deliver(ctx, item.n, q.cfg.Concurrency)
		elapsed := time.Since(start)

		if err != nil {
			q.recordFailure()
			m.logger.Error("notification delivery failed",
				logger.QueueID(q.cfg.ID),
				logger.NotificationID(item.n.ID),
				slog.Int("attempt", item.attempt+1),
				logger.Error(err))
			m.handleFailure(ctx, q, item, err)
		} else {
			q.recordSuccess(elapsed)
		}

		// Token-less pacing between items, kept for compatibility with
		// the established drain contract.
		if q.cfg.RateLimit.Enabled && q.cfg.RateLimit.RequestsPerSecond > 0 {
			delay := time.Duration(1000/q.cfg.RateLimit.RequestsPerSecond) * time.Millisecond
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleFailure schedules a retry with the configured backoff, or hands
// the notification to the exhaust callback once the attempt budget is
// spent.
func (m *QueueManager) handleFailure(ctx context.Context, q *queue, item queueItem, err error) {
	attempts := item.attempt + 1
	policy := q.cfg.Retry

	if !policy.Enabled || attempts >= policy.MaxAttempts {
		if m.exhaust != nil {
			m.exhaust(ctx, item.n, err)
		}
		return
	}

	delay := backoffDelay(policy, attempts)
	retry := queueItem{n: item.n, attempt: attempts}

	m.timersMu.Lock()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		m.timersMu.Lock()
		delete(m.timers, timer)
		m.timersMu.Unlock()

		if enqueueErr := m.enqueueItem(retry); enqueueErr != nil {
			m.logger.Warn("retry enqueue failed",
				logger.QueueID(q.cfg.ID),
				logger.NotificationID(item.n.ID),
				logger.Error(enqueueErr))
		}
	})
	m.timers[timer] = struct{}{}
	m.timersMu.Unlock()
}

// Metrics returns a snapshot of every lane's counters.
func (m *QueueManager) Metrics() map[string]QueueMetrics {
	out := make(map[string]QueueMetrics, len(m.queues))
	for id, q := range m.queues {
		out[id] = q.metrics()
	}
	return out
}

// Close stops accepting work, cancels pending retries and waits for
// in-flight drains to finish.
func (m *QueueManager) Close() {
	if m.closed.Swap(true) {
		return
	}

	m.timersMu.Lock()
	for timer := range m.timers {
		timer.Stop()
	}
	clear(m.timers)
	m.timersMu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
