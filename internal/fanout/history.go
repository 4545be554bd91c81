package fanout

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/protocol"
	"github.com/nerrad567/echo-control-core/internal/store"
)

const (
	defaultWriteTimeout = 2 * time.Second

	// historyQueueSize bounds status records waiting for the writer.
	historyQueueSize = 256
)

// HistorySink records every device status push.
//
// HandlePush only queues the record; Run writes queued records serially so
// a slow database never stalls the supervisor's fan-in goroutine. Records
// that do not fit in the queue are dropped and counted.
type HistorySink struct {
	repo    store.HistoryRepository
	logger  Logger
	timeout time.Duration
	queue   chan *store.StatusRecord
	dropped atomic.Uint64
	now     func() time.Time
}

// NewHistorySink creates a history sink over repo. Call Run to start writing.
func NewHistorySink(repo store.HistoryRepository, logger Logger) *HistorySink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HistorySink{
		repo:    repo,
		logger:  logger,
		timeout: defaultWriteTimeout,
		queue:   make(chan *store.StatusRecord, historyQueueSize),
		now:     time.Now,
	}
}

// HandlePush implements supervisor.Sink. It never blocks.
func (s *HistorySink) HandlePush(p device.Push) {
	m, ok := p.Packet.(*protocol.Message[protocol.DeviceStatus])
	if !ok || m.ID() != protocol.IDDeviceStatusPush {
		return
	}

	rec := &store.StatusRecord{
		DeviceID:   p.Device.Hex(),
		Slot:       p.Slot,
		State:      device.State(m.Body.State).String(),
		ErrorCode:  m.Body.ErrorCode,
		RecordedAt: s.now().UTC(),
	}
	select {
	case s.queue <- rec:
	default:
		if s.dropped.Add(1) == 1 {
			s.logger.Warn("status history queue full, dropping records", "device", rec.DeviceID)
		}
	}
}

// Dropped returns how many status records were discarded because the queue
// was full.
func (s *HistorySink) Dropped() uint64 { return s.dropped.Load() }

// Run writes queued records until ctx is cancelled, then writes whatever is
// still queued.
func (s *HistorySink) Run(ctx context.Context) {
	for {
		select {
		case rec := <-s.queue:
			s.write(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-s.queue:
					s.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *HistorySink) write(rec *store.StatusRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.repo.Record(ctx, rec); err != nil {
		s.logger.Warn("recording status", "device", rec.DeviceID, "error", err)
	}
}

// RunPruner deletes history older than keep every interval until ctx is
// cancelled. A non-positive keep disables pruning.
func (s *HistorySink) RunPruner(ctx context.Context, keep, interval time.Duration) {
	if keep <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.prune(ctx, keep)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *HistorySink) prune(ctx context.Context, keep time.Duration) {
	n, err := s.repo.Prune(ctx, time.Now().Add(-keep))
	switch {
	case err != nil && ctx.Err() == nil:
		s.logger.Warn("pruning status history", "error", err)
	case n > 0:
		s.logger.Info("pruned status history", "rows", n)
	}
}
