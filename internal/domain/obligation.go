package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ObligationStatus string

const (
	ObligationPending     ObligationStatus = "pending"
	ObligationUnderReview ObligationStatus = "under_review"
	ObligationPaid        ObligationStatus = "paid"
	ObligationRejected    ObligationStatus = "rejected"
	ObligationExpired     ObligationStatus = "expired"
)

// Active obligations hold their stand; every other status is terminal.
func (s ObligationStatus) Active() bool {
	return s == ObligationPending || s == ObligationUnderReview
}

// Reasons recorded on obligations terminated outside a reviewer decision.
const (
	ReasonCancelledByParticipant = "cancelled by participant"
	ReasonAdministrativeOverride = "administrative override"
)

// Obligation is the payment expected for one reservation of one stand.
// Amount is a snapshot of the stand price at reservation time.
type Obligation struct {
	ID            string
	StandID       string
	ParticipantID string
	Amount        decimal.Decimal
	Status        ObligationStatus
	ReceiptRef    string
	Reason        string
	DecidedBy     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	DecidedAt     *time.Time
}

// Lapsed reports whether the hold behind an active obligation has run out.
func (o Obligation) Lapsed(now time.Time) bool {
	return o.Status.Active() && !o.ExpiresAt.After(now)
}

// Decision carries who terminated an obligation, when, and why.
type Decision struct {
	By     string
	Reason string
	At     time.Time
}
