package http

import (
	"time"

	"github.com/cimillas/expo-stands/internal/domain"
)

type standResponse struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price"`
	Status      string    `json:"status"`
	HolderID    string    `json:"holder_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newStandResponse(s domain.Stand) standResponse {
	return standResponse{
		ID:          s.ID,
		EventID:     s.EventID,
		Name:        s.Name,
		Description: s.Description,
		Price:       s.Price.StringFixed(2),
		Status:      string(s.Status),
		HolderID:    s.HolderID,
		UpdatedAt:   s.UpdatedAt,
	}
}

type obligationResponse struct {
	ID            string     `json:"id"`
	StandID       string     `json:"stand_id"`
	ParticipantID string     `json:"participant_id"`
	Amount        string     `json:"amount"`
	Status        string     `json:"status"`
	ReceiptRef    string     `json:"receipt_ref,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	DecidedBy     string     `json:"decided_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

func newObligationResponse(o domain.Obligation) obligationResponse {
	return obligationResponse{
		ID:            o.ID,
		StandID:       o.StandID,
		ParticipantID: o.ParticipantID,
		Amount:        o.Amount.StringFixed(2),
		Status:        string(o.Status),
		ReceiptRef:    o.ReceiptRef,
		Reason:        o.Reason,
		DecidedBy:     o.DecidedBy,
		CreatedAt:     o.CreatedAt,
		ExpiresAt:     o.ExpiresAt,
		DecidedAt:     o.DecidedAt,
	}
}

func newObligationPtr(o *domain.Obligation) *obligationResponse {
	if o == nil {
		return nil
	}
	resp := newObligationResponse(*o)
	return &resp
}

// standViewResponse is a stand with its current obligation. PaymentStatus
// is empty when the stand was never reserved.
type standViewResponse struct {
	standResponse
	PaymentStatus string              `json:"payment_status,omitempty"`
	Obligation    *obligationResponse `json:"obligation,omitempty"`
}

func newStandViewResponse(v domain.StandView) standViewResponse {
	return standViewResponse{
		standResponse: newStandResponse(v.Stand),
		PaymentStatus: string(v.PaymentStatus()),
		Obligation:    newObligationPtr(v.Obligation),
	}
}

type settlementResponse struct {
	Stand      standResponse      `json:"stand"`
	Obligation obligationResponse `json:"obligation"`
}
