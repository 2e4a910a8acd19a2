// Package queue dispatches shipment notices to a publisher through an
// in-memory queue and an autoscaled pool of workers.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/th2484/ziplineordersystem/internal/config"
	"github.com/th2484/ziplineordersystem/internal/model"
	"github.com/th2484/ziplineordersystem/internal/obs"
)

// Publisher delivers one shipment notice to its sink.
type Publisher interface {
	Publish(ctx context.Context, n model.ShipmentNotice) error
}

const (
	publishAttempts = 3
	publishBackoff  = 100 * time.Millisecond
)

// Manager coordinates workers publishing queued notices and scaling.
type Manager struct {
	cfg    config.Config
	q      *Queue
	pub    Publisher
	seq    Sequencer
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	workerCancels []context.CancelFunc
}

// NewManager constructs a Manager that publishes through pub.
func NewManager(cfg config.Config, q *Queue, pub Publisher) *Manager {
	return &Manager{cfg: cfg, q: q, pub: pub}
}

// Start begins processing and autoscaling in the background.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx, m.cfg.QueueHighWatermark)
	m.addWorkers(max(m.cfg.InitialWorkerCount, 1))
	go m.scaler()
}

// Stop cancels background routines and stops workers.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, c := range m.workerCancels {
		c()
	}
	m.workerCancels = nil
	m.mu.Unlock()
}

// scaler adjusts worker count based on backlog and configuration.
func (m *Manager) scaler() {
	t := time.NewTicker(m.cfg.ScaleInterval)
	defer t.Stop()
	idleTicks := 0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			backlog := m.q.BacklogSize()
			wc := m.WorkerCount()
			if backlog > wc*m.cfg.ScaleUpBacklogPerWorker && wc < m.cfg.WorkerMax {
				m.addWorkers(1)
				idleTicks = 0
				continue
			}
			if backlog == 0 {
				idleTicks++
				if idleTicks >= m.cfg.ScaleDownIdleTicks && wc > m.cfg.WorkerMin {
					m.removeWorkers(1)
					idleTicks = 0
				}
			} else {
				idleTicks = 0
			}
		}
	}
}

// addWorkers spawns n workers.
func (m *Manager) addWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		wctx, cancel := context.WithCancel(m.ctx)
		m.workerCancels = append(m.workerCancels, cancel)
		go m.worker(wctx)
	}
	obs.Logger.Infow("workers_scaled", "worker_count", len(m.workerCancels))
}

// removeWorkers stops up to n workers.
func (m *Manager) removeWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n = min(n, len(m.workerCancels))
	for i := 0; i < n; i++ {
		c := m.workerCancels[len(m.workerCancels)-1]
		m.workerCancels = m.workerCancels[:len(m.workerCancels)-1]
		c()
	}
	obs.Logger.Infow("workers_scaled", "worker_count", len(m.workerCancels))
}

// worker publishes notices from the queue until its context ends.
func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-m.q.Out():
			m.q.MarkProcessed(m.publish(ctx, n))
		}
	}
}

// publish tries a notice a few times before giving up on it.
func (m *Manager) publish(ctx context.Context, n model.ShipmentNotice) bool {
	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if err = m.pub.Publish(ctx, n); err == nil {
			return true
		}
		obs.Logger.Warnw("notice_publish_retry",
			"sequence", n.Sequence, "shipment_id", n.ShipmentID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			// worker stopped
			obs.Logger.Errorw("notice_publish_failed", "sequence", n.Sequence, "shipment_id", n.ShipmentID, "error", ctx.Err())
			return false
		case <-time.After(publishBackoff * time.Duration(attempt)):
		}
	}
	obs.Logger.Errorw("notice_publish_failed", "sequence", n.Sequence, "shipment_id", n.ShipmentID, "error", err)
	return false
}

// Enqueue hands n to the queue. A notice offered after intake closed is
// logged and counted as dropped.
func (m *Manager) Enqueue(n model.ShipmentNotice) bool {
	if !m.q.Enqueue(n) {
		obs.Logger.Warnw("notice_dropped", "sequence", n.Sequence, "shipment_id", n.ShipmentID, "order_id", n.OrderID)
		return false
	}
	return true
}

// BacklogSize returns pending items in the queue.
func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

// QueueDepth returns backlog plus buffered output items.
func (m *Manager) QueueDepth() int { return m.q.QueueDepth() }

// WorkerCount returns the current number of workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workerCancels)
}

// NextSequence returns the next notice sequence number.
func (m *Manager) NextSequence() uint64 { return m.seq.Next() }

// LastSequence returns the last issued notice sequence number.
func (m *Manager) LastSequence() uint64 { return m.seq.Last() }

// IsShuttingDown reports whether new enqueues are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake disallows future enqueues.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// QueueMetrics exposes the underlying queue metrics.
func (m *Manager) QueueMetrics() Metrics { return m.q.Metrics() }

// DrainUntil blocks until every enqueued notice has been processed or ctx
// is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		qm := m.q.Metrics()
		if qm.Backlog == 0 && qm.Depth == 0 && qm.Enqueued == qm.Processed {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
