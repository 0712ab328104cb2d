package writer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// messageNamespace scopes the name-based row ids.
var messageNamespace = uuid.MustParse("6f1c3c55-8a4e-4b43-9d2e-0c7b6a4f8e21")

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultWriterConfig returns default configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// WriterStats contains runtime statistics.
type WriterStats struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

// Metrics is the set of counters the writer reports.
type Metrics interface {
	AddArchived(n int)
	IncArchiveErrors()
	IncDropped()
}

type nopMetrics struct{}

func (nopMetrics) AddArchived(int)   {}
func (nopMetrics) IncArchiveErrors() {}
func (nopMetrics) IncDropped()       {}

// BatchSender is the subset of *pgxpool.Pool the writer needs.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// messageRow is one relay_messages row.
type messageRow struct {
	ID         uuid.UUID
	ReceivedAt int64 // Microseconds
	Body       []byte
}

// SubscriptionWriter batches subscription payloads into relay_messages.
type SubscriptionWriter struct {
	cfg     WriterConfig
	logger  *slog.Logger
	metrics Metrics

	input chan messageRow
	db    BatchSender

	batch   []messageRow
	batchMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   WriterStats
}

// NewSubscriptionWriter creates a writer. metrics and logger may be nil.
func NewSubscriptionWriter(cfg WriterConfig, db BatchSender, metrics Metrics, logger *slog.Logger) *SubscriptionWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	return &SubscriptionWriter{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		input:   make(chan messageRow, cfg.BufferSize),
		db:      db,
		batch:   make([]messageRow, 0, cfg.BatchSize),
	}
}

// Enqueue queues a decoded payload for archiving. It never blocks and
// returns false if the payload was dropped.
func (w *SubscriptionWriter) Enqueue(payload any) bool {
	row, err := w.transform(payload, time.Now())
	if err != nil {
		w.logger.Warn("cannot encode subscription payload", "error", err)
		w.recordDrop()
		return false
	}

	select {
	case w.input <- row:
		return true
	default:
		w.logger.Warn("archive buffer full, dropping message")
		w.recordDrop()
		return false
	}
}

// Start begins consuming queued payloads and writing them.
func (w *SubscriptionWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("subscription writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer and flushes whatever is still queued.
func (w *SubscriptionWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping subscription writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("subscription writer stop timed out")
		return ctx.Err()
	}

	// Drain what is left in the queue
	for drained := false; !drained; {
		select {
		case row := <-w.input:
			w.add(row)
		default:
			drained = true
		}
	}

	w.flush(ctx)
	w.logger.Info("subscription writer stopped")
	return nil
}

// Stats returns current statistics.
func (w *SubscriptionWriter) Stats() WriterStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

func (w *SubscriptionWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case row := <-w.input:
			if w.add(row) {
				w.flush(w.ctx)
			}
		}
	}
}

func (w *SubscriptionWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends a row and reports whether the batch is full.
func (w *SubscriptionWriter) add(row messageRow) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform encodes a payload into a row.
func (w *SubscriptionWriter) transform(payload any, receivedAt time.Time) (messageRow, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return messageRow{}, err
	}
	return messageRow{
		ID:         uuid.NewSHA1(messageNamespace, body),
		ReceivedAt: receivedAt.UnixMicro(),
		Body:       body,
	}, nil
}

// flush writes the current batch to the database.
func (w *SubscriptionWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]messageRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.metrics.IncArchiveErrors()
		w.statsMu.Lock()
		w.stats.Errors++
		w.statsMu.Unlock()
		return
	}

	inserted := len(batch) - conflicts
	w.metrics.AddArchived(inserted)

	w.statsMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.statsMu.Unlock()

	w.logger.Debug("flushed relay messages",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *SubscriptionWriter) batchInsert(ctx context.Context, rows []messageRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO relay_messages (id, received_at, body)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.ReceivedAt, r.Body)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

func (w *SubscriptionWriter) recordDrop() {
	w.metrics.IncDropped()
	w.statsMu.Lock()
	w.stats.Dropped++
	w.statsMu.Unlock()
}
