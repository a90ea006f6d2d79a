package adapters_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	claimintake "github.com/goliatone/go-claimintake"
	"github.com/goliatone/go-claimintake/adapters/gocommand"
	"github.com/goliatone/go-claimintake/adapters/gojob"
	"github.com/goliatone/go-claimintake/adapters/gologger"
	claimcommand "github.com/goliatone/go-claimintake/command"
	"github.com/goliatone/go-claimintake/core"
	claimquery "github.com/goliatone/go-claimintake/query"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
)

func TestRuntimeCompatibility_ReconcileThroughQueueAndDispatcher(t *testing.T) {
	ctx := context.Background()
	ledger := core.NewMemorySubmissionLedger()
	due := time.Now().UTC().Add(-time.Minute)
	if err := ledger.Save(ctx, core.LedgerEntry{
		DraftID:          "draft-1",
		IdempotencyToken: "tok-1",
		Phase:            core.SubmissionPhaseInsurerAccepted,
		InsurerAckID:     "ACK-1",
		Payload:          core.ClaimPayload{DraftID: "draft-1", PolicyID: "POL-1", IdempotencyToken: "tok-1"},
		NextAttemptAt:    &due,
	}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	logger := &compatLogger{}
	local := &compatLocalRecord{failures: 1}
	clock := time.Now().UTC()
	svc, err := claimintake.NewService(claimintake.DefaultConfig(),
		claimintake.WithClock(func() time.Time { return clock }),
		claimintake.WithLoggerProvider(&compatProvider{logger: logger}),
		claimintake.WithSubmissionLedger(ledger),
		claimintake.WithLocalRecordAPI(local),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := claimintake.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs, err := gocommand.RegisterFacade(adapter, facade)
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	workerLogger, jobProvider := gologger.ForReconcileWorker(svc.Dependencies())
	if jobProvider == nil {
		t.Fatalf("expected go-job logger provider")
	}

	q := &memoryQueue{}
	cfg := svc.Config().Reconcile
	scheduler := gojob.NewScheduler(q, cfg)
	if err := scheduler.Schedule(ctx); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	policy := gojob.RetryPolicyFromConfig(cfg)
	policy.BaseDelay = 0
	w := gojob.NewReconcileWorker(q, svc, policy, gojob.WithHook(gojob.NewLoggingHook(workerLogger)))

	if err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if q.requeued != 1 {
		t.Fatalf("expected failed run to be requeued, got %d", q.requeued)
	}

	entry, err := commanddispatcher.Query[claimquery.LedgerEntryMessage, core.LedgerEntry](ctx, claimquery.LedgerEntryMessage{DraftID: "draft-1"})
	if err != nil {
		t.Fatalf("query ledger entry: %v", err)
	}
	if entry.Attempts != 1 || entry.NextAttemptAt == nil {
		t.Fatalf("expected scheduled retry on ledger, got %+v", entry)
	}

	// Dispatching the reconcile command directly behaves like a worker run.
	clock = entry.NextAttemptAt.Add(time.Second)
	stats := command.NewResult[core.ReconcileStats]()
	if err := gocommand.Dispatch(command.ContextWithResult(ctx, stats), claimcommand.ReconcilePendingMessage{BatchSize: 10}); err != nil {
		t.Fatalf("dispatch reconcile: %v", err)
	}
	if got, ok := stats.Load(); !ok || got.Persisted != 1 {
		t.Fatalf("expected one persisted entry, got %+v", got)
	}

	entry, err = commanddispatcher.Query[claimquery.LedgerEntryMessage, core.LedgerEntry](ctx, claimquery.LedgerEntryMessage{DraftID: "draft-1"})
	if err != nil {
		t.Fatalf("query ledger entry: %v", err)
	}
	if entry.Phase != core.SubmissionPhasePersisted || entry.ClaimID != "CLM-COMPAT" {
		t.Fatalf("expected persisted ledger entry, got %+v", entry)
	}
	if logger.count("warn") == 0 {
		t.Fatalf("expected retry to be logged through the bridged provider")
	}
}

type memoryQueue struct {
	mu       sync.Mutex
	items    []*job.ExecutionMessage
	requeued int
}

func (q *memoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, msg)
	return nil
}

func (q *memoryQueue) Dequeue(context.Context) (queue.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	next := q.items[0]
	q.items = q.items[1:]
	return &memoryDelivery{queue: q, msg: next}, nil
}

type memoryDelivery struct {
	queue *memoryQueue
	msg   *job.ExecutionMessage
}

func (d *memoryDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *memoryDelivery) Ack(context.Context) error { return nil }

func (d *memoryDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	if !opts.Requeue {
		return nil
	}
	d.queue.mu.Lock()
	d.queue.requeued++
	d.queue.mu.Unlock()
	return d.queue.Enqueue(ctx, d.msg)
}

type compatLocalRecord struct {
	mu       sync.Mutex
	failures int
}

func (l *compatLocalRecord) PersistClaim(context.Context, core.LocalClaimRecord) (core.LocalRecordResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		return core.LocalRecordResponse{}, errors.New("store unavailable")
	}
	return core.LocalRecordResponse{Success: true, ClaimID: "CLM-COMPAT"}, nil
}

type compatProvider struct {
	logger *compatLogger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	return p.logger
}

type compatLogger struct {
	mu     sync.Mutex
	levels map[string]int
}

func (l *compatLogger) record(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.levels == nil {
		l.levels = map[string]int{}
	}
	l.levels[level]++
}

func (l *compatLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.levels[level]
}

func (l *compatLogger) Trace(string, ...any)                    {}
func (l *compatLogger) Debug(string, ...any)                    { l.record("debug") }
func (l *compatLogger) Info(string, ...any)                     { l.record("info") }
func (l *compatLogger) Warn(string, ...any)                     { l.record("warn") }
func (l *compatLogger) Error(string, ...any)                    { l.record("error") }
func (l *compatLogger) Fatal(string, ...any)                    {}
func (l *compatLogger) WithContext(context.Context) glog.Logger { return l }
