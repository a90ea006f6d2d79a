package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[StartSessionMessage]          = (*StartSessionCommand)(nil)
	_ gocmd.Commander[CloseSessionMessage]          = (*CloseSessionCommand)(nil)
	_ gocmd.Commander[SelectPolicyMessage]          = (*SelectPolicyCommand)(nil)
	_ gocmd.Commander[SetClaimTypeMessage]          = (*SetClaimTypeCommand)(nil)
	_ gocmd.Commander[SelectPatientMessage]         = (*SelectPatientCommand)(nil)
	_ gocmd.Commander[UpdateHospitalizationMessage] = (*UpdateHospitalizationCommand)(nil)
	_ gocmd.Commander[UpdateContactMessage]         = (*UpdateContactCommand)(nil)
	_ gocmd.Commander[AttachDocumentMessage]        = (*AttachDocumentCommand)(nil)
	_ gocmd.Commander[EnterPincodeMessage]          = (*EnterPincodeCommand)(nil)
	_ gocmd.Commander[AdvanceMessage]               = (*AdvanceCommand)(nil)
	_ gocmd.Commander[RetreatMessage]               = (*RetreatCommand)(nil)
	_ gocmd.Commander[AbandonMessage]               = (*AbandonCommand)(nil)
	_ gocmd.Commander[SubmitMessage]                = (*SubmitCommand)(nil)
	_ gocmd.Commander[RetryPersistenceMessage]      = (*RetryPersistenceCommand)(nil)
	_ gocmd.Commander[ResumeSessionMessage]         = (*ResumeSessionCommand)(nil)
	_ gocmd.Commander[ReconcilePendingMessage]      = (*ReconcilePendingCommand)(nil)
)
