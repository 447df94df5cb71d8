// Package audit implements the append-only, hash-chained audit log
// (C4): a single writer, a bounded indexed hot store for queries, and
// a batched egress pipeline to an optional external sink with an
// immediate-dispatch bypass for high/critical severity events.
package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sink is the optional external durability target (e.g. a SIEM, a
// compliance warehouse). A nil sink means the hot store is the only
// durability tier.
type Sink interface {
	WriteBatch(ctx context.Context, events []Event) error
}

// Config controls batching, retention, and the hot store bound.
type Config struct {
	BatchSize      int
	FlushInterval  time.Duration
	MaxRetries     int
	HotCapacity    int
	RetentionDays  int
}

func (c Config) normalized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.HotCapacity <= 0 {
		c.HotCapacity = 100000
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 2555
	}
	return c
}

// Engine is the audit log writer and query surface.
type Engine struct {
	logger zerolog.Logger
	sink   Sink
	config Config

	mu       sync.RWMutex
	lastHash string
	hot      []Event

	batchCh chan Event
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	written int64
	dropped int64
	errored int64
}

func NewEngine(logger zerolog.Logger, sink Sink, config Config) *Engine {
	cfg := config.normalized()
	return &Engine{
		logger:   logger.With().Str("component", "audit").Logger(),
		sink:     sink,
		config:   cfg,
		lastHash: genesisHash,
		batchCh:  make(chan Event, cfg.HotCapacity),
	}
}

// Start launches the background batch-egress worker.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.batchWorker(ctx)
}

// Stop drains the remaining batch and stops the worker.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// LogEvent appends a new event to the chain, then routes it to either
// the immediate-dispatch path (high/critical severity) or the batch
// queue. Never returns an error to the caller — a full batch queue
// simply drops into the counted failure path while the hot store
// still holds the event for query().
func (e *Engine) LogEvent(ctx context.Context, typ, action string, severity Severity, actor *Actor, subject *Subject, outcome Outcome, detail map[string]interface{}) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Action:    action,
		Severity:  severity,
		Actor:     actor,
		Subject:   subject,
		Outcome:   outcome,
		Detail:    detail,
	}

	e.mu.Lock()
	ev.PrevHash = e.lastHash
	ev.Hash = computeHash(&ev, e.lastHash)
	e.lastHash = ev.Hash
	e.hot = append(e.hot, ev)
	e.trimRetentionLocked()
	if len(e.hot) > e.config.HotCapacity {
		e.hot = e.hot[len(e.hot)-e.config.HotCapacity:]
	}
	e.mu.Unlock()

	if severity.critical() {
		e.dispatchImmediate(ctx, ev)
		return ev
	}

	select {
	case e.batchCh <- ev:
	default:
		atomic.AddInt64(&e.dropped, 1)
		e.logger.Warn().Str("event_id", ev.ID).Msg("audit batch queue full, event retained in hot store only")
	}
	return ev
}

func (e *Engine) trimRetentionLocked() {
	cutoff := time.Now().AddDate(0, 0, -e.config.RetentionDays)
	i := 0
	for i < len(e.hot) && e.hot[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		e.hot = e.hot[i:]
	}
}

func (e *Engine) dispatchImmediate(ctx context.Context, ev Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.WriteBatch(ctx, []Event{ev}); err != nil {
		atomic.AddInt64(&e.errored, 1)
		e.logger.Error().Err(err).Str("event_id", ev.ID).Msg("critical audit event dispatch failed")
	} else {
		atomic.AddInt64(&e.written, 1)
	}
}

func (e *Engine) batchWorker(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, e.config.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		e.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case ev := <-e.batchCh:
			batch = append(batch, ev)
			if len(batch) >= e.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (e *Engine) flush(batch []Event) {
	if e.sink == nil {
		atomic.AddInt64(&e.written, int64(len(batch)))
		return
	}

	cp := make([]Event, len(batch))
	copy(cp, batch)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		err = e.sink.WriteBatch(ctx, cp)
		if err == nil {
			atomic.AddInt64(&e.written, int64(len(cp)))
			return
		}
		e.logger.Warn().Err(err).Int("attempt", attempt+1).Int("batch_size", len(cp)).Msg("audit batch flush failed")
	}

	// Re-enqueue on total failure per the durability-tier contract.
	atomic.AddInt64(&e.errored, 1)
	for _, ev := range cp {
		select {
		case e.batchCh <- ev:
		default:
			atomic.AddInt64(&e.dropped, 1)
		}
	}
}

// QueryFilter narrows a Query call.
type QueryFilter struct {
	Start    time.Time
	End      time.Time
	Type     string
	UserID   string
	Severity Severity
	Limit    int
	Offset   int
}

// Query returns events matching the filter, ordered oldest-first,
// reading only the bounded hot store.
func (e *Engine) Query(f QueryFilter) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var matched []Event
	for _, ev := range e.hot {
		if !f.Start.IsZero() && ev.Timestamp.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && ev.Timestamp.After(f.End) {
			continue
		}
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		if f.UserID != "" && (ev.Actor == nil || ev.Actor.UserID != f.UserID) {
			continue
		}
		if f.Severity != "" && ev.Severity != f.Severity {
			continue
		}
		matched = append(matched, ev)
	}

	if f.Offset >= len(matched) {
		return nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched
}

// VerifyIntegrity recomputes the hash chain over the hot store and
// reports the index of the first break, if any.
func (e *Engine) VerifyIntegrity() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return VerifyChain(e.hot)
}

// ComplianceStandard enumerates the supported report formats.
type ComplianceStandard string

const (
	StandardSOC2     ComplianceStandard = "SOC2"
	StandardISO27001 ComplianceStandard = "ISO27001"
	StandardGDPR     ComplianceStandard = "GDPR"
)

// ComplianceReport summarizes audit activity over a window for a
// named compliance standard.
type ComplianceReport struct {
	Standard       ComplianceStandard `json:"standard"`
	WindowStart    time.Time          `json:"window_start"`
	WindowEnd      time.Time          `json:"window_end"`
	TotalEvents    int                `json:"total_events"`
	BySeverity     map[Severity]int   `json:"by_severity"`
	ByOutcome      map[Outcome]int    `json:"by_outcome"`
	ChainVerified  bool               `json:"chain_verified"`
	FailureBreakAt int                `json:"chain_break_index,omitempty"`
}

// ComplianceReport produces an aggregate report for a standard and
// window. All three supported standards draw on the same event set;
// the standard name is recorded for the exporter but doesn't change
// what's aggregated, since the gateway keeps one unified audit trail
// rather than per-standard event taxonomies.
func (e *Engine) ComplianceReportFor(standard ComplianceStandard, start, end time.Time) (ComplianceReport, error) {
	switch standard {
	case StandardSOC2, StandardISO27001, StandardGDPR:
	default:
		return ComplianceReport{}, fmt.Errorf("unsupported compliance standard %q", standard)
	}

	events := e.Query(QueryFilter{Start: start, End: end})
	report := ComplianceReport{
		Standard:    standard,
		WindowStart: start,
		WindowEnd:   end,
		TotalEvents: len(events),
		BySeverity:  make(map[Severity]int),
		ByOutcome:   make(map[Outcome]int),
	}
	for _, ev := range events {
		report.BySeverity[ev.Severity]++
		report.ByOutcome[ev.Outcome]++
	}

	// Chain integrity is a property of the whole hot store, not the
	// windowed subset — a break before the window still taints it.
	breakAt := e.VerifyIntegrity()
	report.ChainVerified = breakAt == -1
	if !report.ChainVerified {
		report.FailureBreakAt = breakAt
	}
	return report, nil
}
