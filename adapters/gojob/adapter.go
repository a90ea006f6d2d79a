package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-claimintake/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDReconcilePending = "claims.persistence.reconcile"
	ParamBatchSize        = "batch_size"

	dedupDrop = "drop"
)

// ErrNoDelivery is returned by ProcessNext when the queue had nothing ready.
var ErrNoDelivery = errors.New("gojob: no delivery available")

// Reconciler runs one persistence reconcile batch.
type Reconciler interface {
	ReconcilePending(ctx context.Context, batchSize int) (core.ReconcileStats, error)
}

// RetryPolicy bounds how a failed reconcile job is requeued.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// RetryPolicyFromConfig mirrors the reconciler backoff so queue retries and
// ledger retries advance at the same pace.
func RetryPolicyFromConfig(cfg core.ReconcileConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.InitialBackoff,
		MaxDelay:    cfg.MaxBackoff,
	}
}

// DelayFor doubles BaseDelay per attempt, capped by MaxDelay.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// NewReconcileMessage builds the execution message for one reconcile run.
// Messages built for the same slot share an idempotency key so the queue
// drops duplicates.
func NewReconcileMessage(batchSize int, slot time.Time) *job.ExecutionMessage {
	if batchSize < 0 {
		batchSize = 0
	}
	return &job.ExecutionMessage{
		JobID:          JobIDReconcilePending,
		ScriptPath:     JobIDReconcilePending,
		Parameters:     map[string]any{ParamBatchSize: batchSize},
		IdempotencyKey: JobIDReconcilePending + ":" + slot.UTC().Format(time.RFC3339),
		DedupPolicy:    job.DeduplicationPolicy(dedupDrop),
	}
}

// BatchSizeFromMessage reads the batch size parameter. Queue backends that
// round-trip through JSON hand numbers back as float64.
func BatchSizeFromMessage(msg *job.ExecutionMessage) (int, error) {
	if msg == nil {
		return 0, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDReconcilePending {
		return 0, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	raw, ok := msg.Parameters[ParamBatchSize]
	if !ok || raw == nil {
		return 0, nil
	}
	switch value := raw.(type) {
	case int:
		return value, nil
	case int32:
		return int(value), nil
	case int64:
		return int(value), nil
	case float64:
		return int(value), nil
	default:
		return 0, fmt.Errorf("gojob: batch size has unsupported type %T", raw)
	}
}

// Scheduler enqueues reconcile jobs.
type Scheduler struct {
	enqueuer  queue.Enqueuer
	batchSize int
	interval  time.Duration
	now       func() time.Time
}

func NewScheduler(enqueuer queue.Enqueuer, cfg core.ReconcileConfig) *Scheduler {
	return &Scheduler{
		enqueuer:  enqueuer,
		batchSize: cfg.BatchSize,
		interval:  cfg.InitialBackoff,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Schedule enqueues a reconcile job for the current slot. Slots are the
// clock truncated to the scheduler interval.
func (s *Scheduler) Schedule(ctx context.Context) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	slot := s.now()
	if s.interval > 0 {
		slot = slot.Truncate(s.interval)
	}
	return s.enqueuer.Enqueue(ctx, NewReconcileMessage(s.batchSize, slot))
}

// ReconcileWorker consumes reconcile jobs and runs them against a Reconciler.
type ReconcileWorker struct {
	dequeuer     queue.Dequeuer
	reconciler   Reconciler
	policy       RetryPolicy
	hook         worker.Hook
	pollInterval time.Duration
	now          func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

type WorkerOption func(*ReconcileWorker)

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *ReconcileWorker) {
		w.hook = hook
	}
}

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *ReconcileWorker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func NewReconcileWorker(dequeuer queue.Dequeuer, reconciler Reconciler, policy RetryPolicy, opts ...WorkerOption) *ReconcileWorker {
	w := &ReconcileWorker{
		dequeuer:     dequeuer,
		reconciler:   reconciler,
		policy:       policy,
		pollInterval: time.Second,
		now:          func() time.Time { return time.Now().UTC() },
		attempts:     map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// ProcessNext dequeues one delivery and settles it. The returned error is the
// dequeue or settle failure; reconcile failures are reported through nack.
func (w *ReconcileWorker) ProcessNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.reconciler == nil {
		return fmt.Errorf("gojob: reconcile worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return ErrNoDelivery
	}
	msg := delivery.Message()
	key := attemptKey(msg)
	attempt := w.nextAttempt(key)
	startedAt := w.now()
	w.emit(ctx, func(hook worker.Hook, event worker.Event) { hook.OnStart(ctx, event) }, worker.Event{
		Message:   msg,
		Delivery:  delivery,
		Attempt:   attempt,
		StartedAt: startedAt,
	})

	batchSize, err := BatchSizeFromMessage(msg)
	if err != nil {
		w.clearAttempt(key)
		w.emit(ctx, func(hook worker.Hook, event worker.Event) { hook.OnFailure(ctx, event) }, worker.Event{
			Message:   msg,
			Delivery:  delivery,
			Attempt:   attempt,
			Err:       err,
			StartedAt: startedAt,
			Duration:  w.now().Sub(startedAt),
		})
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
	}

	_, runErr := w.reconciler.ReconcilePending(ctx, batchSize)
	event := worker.Event{
		Message:   msg,
		Delivery:  delivery,
		Attempt:   attempt,
		Err:       runErr,
		StartedAt: startedAt,
		Duration:  w.now().Sub(startedAt),
	}
	if runErr == nil {
		w.clearAttempt(key)
		w.emit(ctx, func(hook worker.Hook, event worker.Event) { hook.OnSuccess(ctx, event) }, event)
		return delivery.Ack(ctx)
	}

	opts := w.policy.NormalizeAttempt(queue.NackOptions{
		Delay:   w.policy.DelayFor(attempt),
		Requeue: true,
		Reason:  runErr.Error(),
	}, attempt)
	event.Delay = opts.Delay
	if opts.Requeue {
		w.emit(ctx, func(hook worker.Hook, event worker.Event) { hook.OnRetry(ctx, event) }, event)
	} else {
		w.clearAttempt(key)
		w.emit(ctx, func(hook worker.Hook, event worker.Event) { hook.OnFailure(ctx, event) }, event)
	}
	return delivery.Nack(ctx, opts)
}

// Run processes deliveries until ctx is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := w.ProcessNext(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (w *ReconcileWorker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *ReconcileWorker) clearAttempt(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func (w *ReconcileWorker) emit(_ context.Context, fn func(worker.Hook, worker.Event), event worker.Event) {
	if w.hook == nil {
		return
	}
	fn(w.hook, event)
}

func attemptKey(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}
