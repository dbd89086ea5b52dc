// Package brokermsg defines the routing keys and payloads published after a
// stand or obligation transition commits. Consumers (notifications, dashboards)
// subscribe to these; the engine never waits on them.
package brokermsg

import "time"

const (
	TopicStandReserved   = "stand.reserved"
	TopicStandReleased   = "stand.released"
	TopicStandOverridden = "stand.overridden"

	TopicObligationUnderReview = "obligation.under_review"
	TopicObligationPaid        = "obligation.paid"
	TopicObligationRejected    = "obligation.rejected"
	TopicObligationExpired     = "obligation.expired"
)

// StandReservedMessage is published when a participant wins a stand.
type StandReservedMessage struct {
	StandID       string    `json:"stand_id"`
	EventID       string    `json:"event_id"`
	ObligationID  string    `json:"obligation_id"`
	ParticipantID string    `json:"participant_id"`
	Amount        string    `json:"amount"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// StandReleasedMessage is published when a stand re-enters the pool.
type StandReleasedMessage struct {
	StandID       string `json:"stand_id"`
	EventID       string `json:"event_id"`
	ObligationID  string `json:"obligation_id,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
	Reason        string `json:"reason"`
}

// ObligationMessage covers every obligation status change.
type ObligationMessage struct {
	ObligationID  string     `json:"obligation_id"`
	StandID       string     `json:"stand_id"`
	ParticipantID string     `json:"participant_id"`
	Status        string     `json:"status"`
	Amount        string     `json:"amount"`
	ReceiptRef    string     `json:"receipt_ref,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	DecidedBy     string     `json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

// StandOverriddenMessage records a privileged status override.
type StandOverriddenMessage struct {
	StandID              string `json:"stand_id"`
	EventID              string `json:"event_id"`
	PreviousStatus       string `json:"previous_status"`
	Status               string `json:"status"`
	HolderID             string `json:"holder_id,omitempty"`
	ActorID              string `json:"actor_id"`
	Note                 string `json:"note,omitempty"`
	TerminatedObligation string `json:"terminated_obligation,omitempty"`
}
