package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const asyncCallbackCeiling = 300 * time.Second

// Orchestrator stores workflow definitions, dispatches manual,
// scheduled, change, and event triggers, tracks execution lifecycle
// with linear-backoff retry, and fans out terminal-state webhooks.
type Orchestrator struct {
	logger   zerolog.Logger
	client   *Client
	webhooks *WebhookDispatcher
	cron     *cron.Cron

	mu          sync.RWMutex
	definitions map[string]Definition
	executions  map[string]*Execution
	cronEntries map[string]cron.EntryID

	callbackMu sync.Mutex
	callbacks  map[string]chan callbackResult

	// backoffFn computes the retry backoff duration; overridable in
	// tests to avoid real linear 60s-per-retry waits.
	backoffFn func(retry int) time.Duration
}

type callbackResult struct {
	result map[string]interface{}
	errStr string
}

func NewOrchestrator(logger zerolog.Logger, client *Client, webhooks *WebhookDispatcher) *Orchestrator {
	return &Orchestrator{
		logger:      logger.With().Str("component", "workflow_orchestrator").Logger(),
		client:      client,
		webhooks:    webhooks,
		cron:        cron.New(),
		definitions: make(map[string]Definition),
		executions:  make(map[string]*Execution),
		cronEntries: make(map[string]cron.EntryID),
		callbacks:   make(map[string]chan callbackResult),
		backoffFn:   func(retry int) time.Duration { return time.Duration(60*retry) * time.Second },
	}
}

// Start begins the cron scheduler.
func (o *Orchestrator) Start() { o.cron.Start() }

// Stop gracefully stops the cron scheduler.
func (o *Orchestrator) Stop() { <-o.cron.Stop().Done() }

// RegisterDefinition stores a (possibly new) definition. If its
// trigger is scheduled, a cron entry is installed evaluating the
// schedule expression.
func (o *Orchestrator) RegisterDefinition(def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("definition id is required")
	}
	norm := def.normalized()

	o.mu.Lock()
	if prev, ok := o.definitions[def.ID]; ok && prev.Type != norm.Type {
		o.mu.Unlock()
		return fmt.Errorf("workflow definition %s: type cannot be changed", def.ID)
	}
	if existing, ok := o.cronEntries[def.ID]; ok {
		o.cron.Remove(existing)
		delete(o.cronEntries, def.ID)
	}
	o.definitions[def.ID] = norm
	o.mu.Unlock()

	if norm.Trigger == TriggerScheduled && norm.Enabled {
		entryID, err := o.cron.AddFunc(norm.Schedule, func() {
			o.runScheduled(norm.ID)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule expression for %s: %w", norm.ID, err)
		}
		o.mu.Lock()
		o.cronEntries[norm.ID] = entryID
		o.mu.Unlock()
	}
	return nil
}

func (o *Orchestrator) runScheduled(defID string) {
	o.mu.RLock()
	def, ok := o.definitions[defID]
	o.mu.RUnlock()
	if !ok || !def.Enabled {
		return
	}
	if _, err := o.trigger(context.Background(), def, nil); err != nil {
		o.logger.Error().Err(err).Str("definition_id", defID).Msg("scheduled trigger failed")
	}
}

// TriggerManual starts a new execution of def immediately, returning
// as soon as the execution is recorded; the external call and any
// retries run in the background.
func (o *Orchestrator) TriggerManual(ctx context.Context, defID string, payload map[string]interface{}) (*Execution, error) {
	o.mu.RLock()
	def, ok := o.definitions[defID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown workflow definition %s", defID)
	}
	if !def.Enabled {
		return nil, fmt.Errorf("workflow definition %s is disabled", defID)
	}
	return o.trigger(ctx, def, payload)
}

// HandleEvent fans an authenticated change/event payload out to every
// enabled definition subscribed to key.
func (o *Orchestrator) HandleEvent(ctx context.Context, subscriptionKey string, payload map[string]interface{}) []*Execution {
	o.mu.RLock()
	var matches []Definition
	for _, def := range o.definitions {
		if (def.Trigger == TriggerChange || def.Trigger == TriggerEvent) &&
			def.SubscriptionKey == subscriptionKey && def.Enabled {
			matches = append(matches, def)
		}
	}
	o.mu.RUnlock()

	execs := make([]*Execution, 0, len(matches))
	for _, def := range matches {
		exec, err := o.trigger(ctx, def, payload)
		if err != nil {
			o.logger.Error().Err(err).Str("definition_id", def.ID).Msg("event trigger failed")
			continue
		}
		execs = append(execs, exec)
	}
	return execs
}

func (o *Orchestrator) trigger(ctx context.Context, def Definition, payload map[string]interface{}) (*Execution, error) {
	exec := &Execution{
		ID:           uuid.NewString(),
		DefinitionID: def.ID,
		Status:       StatusPending,
		Payload:      payload,
	}

	o.mu.Lock()
	o.executions[exec.ID] = exec
	o.mu.Unlock()

	go o.run(context.Background(), def, exec)
	return exec, nil
}

// GetExecution returns a snapshot of an execution's current state.
func (o *Orchestrator) GetExecution(id string) (Execution, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	exec, ok := o.executions[id]
	if !ok {
		return Execution{}, false
	}
	return *exec, true
}

func (o *Orchestrator) run(ctx context.Context, def Definition, exec *Execution) {
	o.setStatus(exec, StatusRunning)
	exec.StartedAt = time.Now()

	for {
		callCtx, cancel := context.WithTimeout(ctx, def.Timeout)
		status, result, errStr := o.attempt(callCtx, def, exec)
		cancel()

		if status != StatusFailed && status != StatusTimedOut {
			o.finish(exec, status, result, errStr, def)
			return
		}

		if def.RetryOnFailure && exec.RetryCount < def.MaxRetries {
			exec.RetryCount++
			o.setStatus(exec, StatusRetrying)
			backoff := o.backoffFn(exec.RetryCount)
			o.logger.Warn().Str("execution_id", exec.ID).Int("retry", exec.RetryCount).
				Dur("backoff", backoff).Msg("workflow execution retrying")
			time.Sleep(backoff)
			o.setStatus(exec, StatusRunning)
			continue
		}

		o.finish(exec, status, result, errStr, def)
		return
	}
}

// attempt performs one trigger-and-wait cycle, returning the resulting
// terminal status for this attempt (completed/failed/timed_out).
func (o *Orchestrator) attempt(ctx context.Context, def Definition, exec *Execution) (Status, map[string]interface{}, string) {
	resp, err := o.client.Trigger(ctx, TriggerRequest{
		ExecutionID: exec.ID,
		CallbackURL: fmt.Sprintf("/api/v1/workflows/callback/%s", exec.ID),
		Definition:  def.ID,
		Type:        def.Type,
		Payload:     exec.Payload,
	})
	if err != nil {
		return StatusFailed, nil, err.Error()
	}

	if !resp.Async {
		return StatusCompleted, resp.Result, ""
	}

	ch := o.registerCallback(exec.ID)
	defer o.unregisterCallback(exec.ID)

	select {
	case cb := <-ch:
		exec.CallbackReceived = true
		if cb.errStr != "" {
			return StatusFailed, nil, cb.errStr
		}
		return StatusCompleted, cb.result, ""
	case <-time.After(asyncCallbackCeiling):
		return StatusTimedOut, nil, "timed out waiting for workflow callback"
	case <-ctx.Done():
		return StatusTimedOut, nil, ctx.Err().Error()
	}
}

func (o *Orchestrator) finish(exec *Execution, status Status, result map[string]interface{}, errStr string, def Definition) {
	o.mu.Lock()
	exec.Status = status
	exec.Result = result
	exec.Err = errStr
	exec.FinishedAt = time.Now()
	exec.Duration = exec.FinishedAt.Sub(exec.StartedAt)
	o.mu.Unlock()

	if def.SubscriptionKey != "" {
		o.webhooks.Dispatch(context.Background(), def.SubscriptionKey, WebhookEvent{
			Type:         "workflow_" + string(status),
			ExecutionID:  exec.ID,
			DefinitionID: def.ID,
			Status:       status,
		})
	}
}

func (o *Orchestrator) setStatus(exec *Execution, status Status) {
	o.mu.Lock()
	exec.Status = status
	o.mu.Unlock()
}

func (o *Orchestrator) registerCallback(executionID string) chan callbackResult {
	ch := make(chan callbackResult, 1)
	o.callbackMu.Lock()
	o.callbacks[executionID] = ch
	o.callbackMu.Unlock()
	return ch
}

func (o *Orchestrator) unregisterCallback(executionID string) {
	o.callbackMu.Lock()
	delete(o.callbacks, executionID)
	o.callbackMu.Unlock()
}

// DeliverCallback routes a verified callback to the waiting execution,
// if one is still waiting. Returns false if no execution is awaiting
// this callback (already timed out or unknown id).
func (o *Orchestrator) DeliverCallback(executionID string, result map[string]interface{}, errStr string) bool {
	o.callbackMu.Lock()
	ch, ok := o.callbacks[executionID]
	o.callbackMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- callbackResult{result: result, errStr: errStr}:
		return true
	default:
		return false
	}
}
