package audit

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu    sync.Mutex
	calls [][]Event
	fail  bool
}

func (m *memSink) WriteBatch(_ context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return context.DeadlineExceeded
	}
	cp := make([]Event, len(events))
	copy(cp, events)
	m.calls = append(m.calls, cp)
	return nil
}

func newTestEngine(sink Sink) *Engine {
	return NewEngine(zerolog.New(io.Discard), sink, Config{
		BatchSize:     100,
		FlushInterval: 20 * time.Millisecond,
		HotCapacity:   1000,
		RetentionDays: 2555,
	})
}

func TestLogEventChainsHashes(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	e.LogEvent(ctx, "test.event", "do-thing", SeverityInfo, nil, nil, OutcomeSuccess, nil)
	e.LogEvent(ctx, "test.event", "do-thing", SeverityInfo, nil, nil, OutcomeSuccess, nil)

	events := e.Query(QueryFilter{})
	require.Len(t, events, 2)
	require.Equal(t, events[0].Hash, events[1].PrevHash)
	require.Equal(t, -1, VerifyChain(events))
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	e.LogEvent(ctx, "test.event", "a", SeverityInfo, nil, nil, OutcomeSuccess, nil)
	e.LogEvent(ctx, "test.event", "b", SeverityInfo, nil, nil, OutcomeSuccess, nil)

	events := e.Query(QueryFilter{})
	events[0].Action = "tampered"
	require.Equal(t, 0, VerifyChain(events))
}

func TestQueryFiltersBySeverityAndUser(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	e.LogEvent(ctx, "auth.login.failure", "login", SeverityMedium, &Actor{UserID: "u1"}, nil, OutcomeFailure, nil)
	e.LogEvent(ctx, "auth.login.failure", "login", SeverityMedium, &Actor{UserID: "u2"}, nil, OutcomeFailure, nil)
	e.LogEvent(ctx, "resource.read", "read", SeverityInfo, &Actor{UserID: "u1"}, nil, OutcomeSuccess, nil)

	u1Events := e.Query(QueryFilter{UserID: "u1"})
	require.Len(t, u1Events, 2)

	failures := e.Query(QueryFilter{Severity: SeverityMedium})
	require.Len(t, failures, 2)
}

func TestCriticalEventBypassesBatch(t *testing.T) {
	sink := &memSink{}
	e := newTestEngine(sink)
	e.LogEvent(context.Background(), "security.breach", "block", SeverityCritical, nil, nil, OutcomeFailure, nil)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.calls, 1)
	require.Len(t, sink.calls[0], 1)
}

func TestBatchFlushesOnInterval(t *testing.T) {
	sink := &memSink{}
	e := newTestEngine(sink)
	e.Start(context.Background())
	defer e.Stop()

	e.LogEvent(context.Background(), "resource.read", "read", SeverityInfo, nil, nil, OutcomeSuccess, nil)

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.calls) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestComplianceReportAggregates(t *testing.T) {
	e := newTestEngine(nil)
	ctx := context.Background()
	e.LogEvent(ctx, "auth.login.failure", "login", SeverityMedium, nil, nil, OutcomeFailure, nil)
	e.LogEvent(ctx, "resource.read", "read", SeverityInfo, nil, nil, OutcomeSuccess, nil)

	report, err := e.ComplianceReportFor(StandardSOC2, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, report.TotalEvents)
	require.True(t, report.ChainVerified)
}

func TestComplianceReportRejectsUnknownStandard(t *testing.T) {
	e := newTestEngine(nil)
	_, err := e.ComplianceReportFor("FEDRAMP", time.Time{}, time.Time{})
	require.Error(t, err)
}
