// Package domain provides core business rules for the leads bounded context.
package domain

// Pipeline stages a lead moves through, in order. A lead enters at StageNew
// and leaves the pipeline at StageOutcome.
const (
	StageNew        = "new"
	StageFirstCall  = "first_call"
	StageSecondCall = "second_call"
	StageMessage    = "message"
	StageRecontact  = "recontact"
	StageOutcome    = "outcome"
)

// Lead statuses. Qualified and lost are terminal: the lead no longer
// participates in distribution, monitoring, or rule evaluation.
const (
	StatusActive         = "active"
	StatusInContact      = "in_contact"
	StatusAwaitingReturn = "awaiting_return"
	StatusQualified      = "qualified"
	StatusLost           = "lost"
)

// Contact attempt channels.
const (
	ChannelCall     = "call"
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
	ChannelInPerson = "in_person"
)

// Contact attempt outcomes.
const (
	OutcomeAnswered  = "answered"
	OutcomeNoAnswer  = "no_answer"
	OutcomeBusy      = "busy"
	OutcomeScheduled = "scheduled"
	OutcomeRefused   = "refused"
)

var knownStages = map[string]struct{}{
	StageNew:        {},
	StageFirstCall:  {},
	StageSecondCall: {},
	StageMessage:    {},
	StageRecontact:  {},
	StageOutcome:    {},
}

func IsKnownStage(stage string) bool {
	_, ok := knownStages[stage]
	return ok
}

var terminalStatuses = map[string]bool{
	StatusQualified: true,
	StatusLost:      true,
}

// IsTerminalStatus reports whether the status removes the lead from the
// active population.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}

var knownStatuses = map[string]struct{}{
	StatusActive:         {},
	StatusInContact:      {},
	StatusAwaitingReturn: {},
	StatusQualified:      {},
	StatusLost:           {},
}

func IsKnownStatus(status string) bool {
	_, ok := knownStatuses[status]
	return ok
}

// ReachedOutcomes are contact outcomes that mean the customer was actually
// reached; logging one moves the lead to in-contact status.
var ReachedOutcomes = map[string]bool{
	OutcomeAnswered:  true,
	OutcomeScheduled: true,
}
