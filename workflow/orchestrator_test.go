package workflow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, handler http.HandlerFunc) (*Orchestrator, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := NewClient(srv.URL, srv.Client())
	webhooks := NewWebhookDispatcher(zerolog.New(io.Discard), srv.Client())
	o := NewOrchestrator(zerolog.New(io.Discard), client, webhooks)
	o.backoffFn = func(retry int) time.Duration { return 10 * time.Millisecond }
	return o, srv
}

func TestTriggerManualSynchronousCompletes(t *testing.T) {
	o, srv := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"rows_refreshed": 42})
	})
	defer srv.Close()

	require.NoError(t, o.RegisterDefinition(Definition{
		ID: "refresh-1", Name: "nightly refresh", Type: TypeRefresh, Trigger: TriggerManual, Enabled: true,
	}))

	exec, err := o.TriggerManual(context.Background(), "refresh-1", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := o.GetExecution(exec.ID)
		return got.Status == StatusCompleted
	}, time.Second, 10*time.Millisecond)

	got, _ := o.GetExecution(exec.ID)
	require.EqualValues(t, 42, got.Result["rows_refreshed"])
	require.False(t, got.FinishedAt.IsZero())
}

func TestTriggerManualAsyncWaitsForCallback(t *testing.T) {
	o, srv := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	defer srv.Close()

	require.NoError(t, o.RegisterDefinition(Definition{
		ID: "report-1", Type: TypeReport, Trigger: TriggerManual, Enabled: true, Timeout: 2 * time.Second,
	}))

	exec, err := o.TriggerManual(context.Background(), "report-1", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := o.GetExecution(exec.ID)
		return got.Status == StatusRunning
	}, time.Second, 5*time.Millisecond)

	delivered := o.DeliverCallback(exec.ID, map[string]interface{}{"report_url": "s3://report.pdf"}, "")
	require.True(t, delivered)

	require.Eventually(t, func() bool {
		got, _ := o.GetExecution(exec.ID)
		return got.Status == StatusCompleted
	}, time.Second, 10*time.Millisecond)

	got, _ := o.GetExecution(exec.ID)
	require.True(t, got.CallbackReceived)
}

func TestAsyncTimeoutMovesExecutionToTimedOut(t *testing.T) {
	o, srv := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	defer srv.Close()

	require.NoError(t, o.RegisterDefinition(Definition{
		ID: "alert-1", Type: TypeAlert, Trigger: TriggerManual, Enabled: true, Timeout: 50 * time.Millisecond,
	}))

	exec, err := o.TriggerManual(context.Background(), "alert-1", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := o.GetExecution(exec.ID)
		return got.Status == StatusTimedOut
	}, time.Second, 10*time.Millisecond)
}

func TestRetryOnFailureThenFailsAfterMaxRetriesAndFiresWebhook(t *testing.T) {
	var calls int64
	o, srv := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	var webhookCalls int64
	webhookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&webhookCalls, 1)
	}))
	defer webhookSrv.Close()
	o.webhooks.Subscribe("sales-alerts", webhookSrv.URL)

	require.NoError(t, o.RegisterDefinition(Definition{
		ID: "alert-2", Type: TypeAlert, Trigger: TriggerManual, Enabled: true,
		RetryOnFailure: true, MaxRetries: 2, SubscriptionKey: "sales-alerts", Timeout: time.Second,
	}))

	exec, err := o.TriggerManual(context.Background(), "alert-2", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := o.GetExecution(exec.ID)
		return got.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, _ := o.GetExecution(exec.ID)
	require.Equal(t, 2, got.RetryCount)
	require.EqualValues(t, 3, atomic.LoadInt64(&calls)) // initial + 2 retries

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&webhookCalls) >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestHandleEventFansOutToSubscribedDefinitions(t *testing.T) {
	o, srv := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	})
	defer srv.Close()

	require.NoError(t, o.RegisterDefinition(Definition{
		ID: "analysis-1", Type: TypeAnalysis, Trigger: TriggerEvent, SubscriptionKey: "dataset.updated", Enabled: true,
	}))
	require.NoError(t, o.RegisterDefinition(Definition{
		ID: "analysis-2", Type: TypeAnalysis, Trigger: TriggerManual, Enabled: true,
	}))

	execs := o.HandleEvent(context.Background(), "dataset.updated", map[string]interface{}{"table": "sales"})
	require.Len(t, execs, 1)
	require.Equal(t, "analysis-1", execs[0].DefinitionID)
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusRunning, StatusRetrying))
	require.True(t, CanTransition(StatusRetrying, StatusRunning))
	require.False(t, CanTransition(StatusCompleted, StatusRunning))
	require.False(t, CanTransition(StatusFailed, StatusRunning))
}
