package claimintake

import (
	"context"
	"testing"

	claimcommand "github.com/goliatone/go-claimintake/command"
	"github.com/goliatone/go-claimintake/core"
	claimquery "github.com/goliatone/go-claimintake/query"
	gocmd "github.com/goliatone/go-command"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc, err := NewService(DefaultConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.StartSession == nil || commands.Advance == nil || commands.Submit == nil || commands.ReconcilePending == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.SessionSummary == nil || queries.LedgerEntry == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if queries.PendingPersistence == nil {
		t.Fatalf("expected pending persistence query to use the service ledger")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc, err := NewService(DefaultConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	collector := gocmd.NewResult[core.ReviewSummary]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := facade.Commands().StartSession.Execute(ctx, claimcommand.StartSessionMessage{}); err != nil {
		t.Fatalf("execute start session: %v", err)
	}
	started, ok := collector.Load()
	if !ok || started.SessionID == "" {
		t.Fatalf("expected started session summary, got %#v", started)
	}

	if err := facade.Commands().SelectPolicy.Execute(context.Background(), claimcommand.SelectPolicyMessage{
		SessionID: started.SessionID,
		Policy:    PolicySelection{PolicyID: "POL-1", PolicyNumber: "HL-1"},
	}); err != nil {
		t.Fatalf("execute select policy: %v", err)
	}

	summary, err := facade.Queries().SessionSummary.Query(context.Background(), claimquery.SessionSummaryMessage{
		SessionID: started.SessionID,
	})
	if err != nil {
		t.Fatalf("query session summary: %v", err)
	}
	if summary.Payload.PolicyID != "POL-1" || summary.State != core.WizardPolicySelect {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	pending, err := facade.Queries().PendingPersistence.Query(context.Background(), claimquery.PendingPersistenceMessage{})
	if err != nil {
		t.Fatalf("query pending persistence: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty ledger, got %d entries", len(pending))
	}
}

func TestNewFacade_WithLedgerOverride(t *testing.T) {
	svc, err := NewService(DefaultConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	override := core.NewMemorySubmissionLedger()
	if err := override.Save(context.Background(), LedgerEntry{DraftID: "d1", IdempotencyToken: "tok-1", Phase: core.SubmissionPhasePending}); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	facade, err := NewFacade(svc, WithLedger(override))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if facade.Queries().PendingPersistence == nil {
		t.Fatalf("expected pending persistence query")
	}
	if _, err := facade.Queries().LedgerEntry.Query(context.Background(), claimquery.LedgerEntryMessage{DraftID: "d1"}); err == nil {
		t.Fatalf("ledger entry query reads the service ledger, not the override")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}
