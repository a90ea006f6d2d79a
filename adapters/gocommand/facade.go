package gocommand

import (
	"fmt"

	claimintake "github.com/goliatone/go-claimintake"
	claimcommand "github.com/goliatone/go-claimintake/command"
	"github.com/goliatone/go-claimintake/core"
	claimquery "github.com/goliatone/go-claimintake/query"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// Subscriptions groups dispatcher subscriptions created for one facade.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterFacade registers every claim intake command and query with the
// registry and subscribes them to the dispatcher. A failed registration
// unwinds the subscriptions created so far.
func RegisterFacade(
	adapter *RegistryAdapter,
	facade *claimintake.Facade,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()

	var subs Subscriptions
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.StartSessionMessage](adapter, commands.StartSession, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.CloseSessionMessage](adapter, commands.CloseSession, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.ResumeSessionMessage](adapter, commands.ResumeSession, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.SelectPolicyMessage](adapter, commands.SelectPolicy, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.SetClaimTypeMessage](adapter, commands.SetClaimType, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.SelectPatientMessage](adapter, commands.SelectPatient, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.UpdateHospitalizationMessage](adapter, commands.UpdateHospitalization, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.UpdateContactMessage](adapter, commands.UpdateContact, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.AttachDocumentMessage](adapter, commands.AttachDocument, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.EnterPincodeMessage](adapter, commands.EnterPincode, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.AdvanceMessage](adapter, commands.Advance, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.RetreatMessage](adapter, commands.Retreat, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.AbandonMessage](adapter, commands.Abandon, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.SubmitMessage](adapter, commands.Submit, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.RetryPersistenceMessage](adapter, commands.RetryPersistence, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[claimcommand.ReconcilePendingMessage](adapter, commands.ReconcilePending, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[claimquery.SessionSummaryMessage, core.ReviewSummary](adapter, queries.SessionSummary, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[claimquery.SubmissionOutcomeMessage, core.SubmissionResult](adapter, queries.SubmissionOutcome, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[claimquery.LedgerEntryMessage, core.LedgerEntry](adapter, queries.LedgerEntry, runnerOpts...)
		},
	}
	if queries.PendingPersistence != nil {
		steps = append(steps, func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[claimquery.PendingPersistenceMessage, []core.LedgerEntry](adapter, queries.PendingPersistence, runnerOpts...)
		})
	}

	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			subs.Unsubscribe()
			return nil, err
		}
		subs = append(subs, subscription)
	}
	return subs, nil
}
