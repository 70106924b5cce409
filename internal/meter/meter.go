// Package meter buffers per-tenant store-operation counts in memory and
// commits them to a durable counter either when a tenant's bucket crosses the
// configured threshold or on a periodic timer.
package meter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OpKind is the kind of metered store operation.
type OpKind string

const (
	OpRead  OpKind = "reads"
	OpWrite OpKind = "writes"
)

// Flusher commits a counted delta to the durable usage counter.
type Flusher interface {
	Flush(ctx context.Context, companyID string, reads, writes int) error
}

type bucket struct {
	reads       int
	writes      int
	lastFlushed time.Time
}

// Meter is the in-memory usage meter. Buckets are reset before their delta is
// committed, so an increment racing a flush lands in a fresh bucket rather
// than being lost or double-counted.
type Meter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	threshold int
	flusher   Flusher
	logger    *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMeter creates a usage meter.
func NewMeter(threshold int, flusher Flusher, logger *zap.Logger) *Meter {
	return &Meter{
		buckets:   make(map[string]*bucket),
		threshold: threshold,
		flusher:   flusher,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// RecordOp adds count operations of the given kind to a tenant's bucket and
// flushes immediately when the bucket reaches the threshold.
func (m *Meter) RecordOp(companyID string, kind OpKind, count int) {
	if count <= 0 {
		return
	}

	m.mu.Lock()
	b, ok := m.buckets[companyID]
	if !ok {
		b = &bucket{lastFlushed: time.Now()}
		m.buckets[companyID] = b
	}

	switch kind {
	case OpRead:
		b.reads += count
	case OpWrite:
		b.writes += count
	}

	var reads, writes int
	flush := false
	if b.reads+b.writes >= m.threshold {
		reads, writes = b.reads, b.writes
		b.reads, b.writes = 0, 0
		b.lastFlushed = time.Now()
		flush = true
	}
	m.mu.Unlock()

	if flush {
		m.commit(companyID, reads, writes)
	}
}

// Start launches the periodic flush loop.
func (m *Meter) Start(interval time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.FlushAll()
			}
		}
	}()
}

// Stop stops the periodic loop and commits whatever is still buffered.
func (m *Meter) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.FlushAll()
}

// FlushAll commits and resets every tenant bucket with a nonzero count.
func (m *Meter) FlushAll() {
	type delta struct {
		companyID string
		reads     int
		writes    int
	}

	m.mu.Lock()
	var deltas []delta
	now := time.Now()
	for companyID, b := range m.buckets {
		if b.reads == 0 && b.writes == 0 {
			continue
		}
		deltas = append(deltas, delta{companyID, b.reads, b.writes})
		b.reads, b.writes = 0, 0
		b.lastFlushed = now
	}
	m.mu.Unlock()

	for _, d := range deltas {
		m.commit(d.companyID, d.reads, d.writes)
	}
}

// LastFlushed returns when a tenant's bucket was last reset.
func (m *Meter) LastFlushed(companyID string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.buckets[companyID]; ok {
		return b.lastFlushed
	}
	return time.Time{}
}

// Pending returns the buffered read and write counts for a tenant.
func (m *Meter) Pending(companyID string) (reads, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.buckets[companyID]; ok {
		return b.reads, b.writes
	}
	return 0, 0
}

func (m *Meter) commit(companyID string, reads, writes int) {
	if err := m.flusher.Flush(context.Background(), companyID, reads, writes); err != nil {
		// the delta is lost; the bucket was already reset so nothing is re-sent
		m.logger.Error("Failed to flush usage counters",
			zap.String("company_id", companyID),
			zap.Int("reads", reads),
			zap.Int("writes", writes),
			zap.Error(err),
		)
		return
	}

	m.logger.Info("Flushed usage counters",
		zap.String("company_id", companyID),
		zap.Int("reads", reads),
		zap.Int("writes", writes),
	)
}
