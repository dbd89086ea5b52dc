package http

import (
	"context"
	"net/http"

	"github.com/cimillas/expo-stands/internal/app"
	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/gorilla/mux"
)

// SettlementEngine is the minimal interface needed for settlement endpoints.
type SettlementEngine interface {
	SubmitProof(ctx context.Context, in app.SubmitProofInput) (domain.Obligation, error)
	Approve(ctx context.Context, in app.DecisionInput) (app.SettlementResult, error)
	Reject(ctx context.Context, in app.RejectInput) (app.SettlementResult, error)
	SetStandStatus(ctx context.Context, in app.OverrideInput) (app.OverrideResult, error)
}

type submitProofRequest struct {
	ReceiptRef string `json:"receipt_ref"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type overrideRequest struct {
	Status   string `json:"status"`
	HolderID string `json:"holder_id,omitempty"`
	Note     string `json:"note,omitempty"`
}

type decisionResponse struct {
	settlementResponse
	Applied bool `json:"applied"`
}

type overrideResponse struct {
	Stand          standResponse       `json:"stand"`
	PreviousStatus string              `json:"previous_status"`
	Terminated     *obligationResponse `json:"terminated_obligation,omitempty"`
}

// HandleSubmitProof attaches a receipt reference to the obligation in the path.
func HandleSubmitProof(svc SettlementEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}

		var req submitProofRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		ob, err := svc.SubmitProof(r.Context(), app.SubmitProofInput{
			ObligationID: mux.Vars(r)["obligationID"],
			ReceiptRef:   req.ReceiptRef,
			Actor:        actor,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newObligationResponse(ob))
	}
}

// HandleApprove marks the obligation paid and the stand sold. Repeating an
// approval returns 200 with applied=false.
func HandleApprove(svc SettlementEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}

		res, err := svc.Approve(r.Context(), app.DecisionInput{
			ObligationID: mux.Vars(r)["obligationID"],
			Actor:        actor,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newDecisionResponse(res))
	}
}

// HandleReject rejects the submitted proof and releases the stand.
func HandleReject(svc SettlementEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}

		var req rejectRequest
		if err := decodeJSON(r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.Reject(r.Context(), app.RejectInput{
			ObligationID: mux.Vars(r)["obligationID"],
			Actor:        actor,
			Reason:       req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newDecisionResponse(res))
	}
}

// HandleSetStandStatus forces a stand into a status, terminating any
// active obligation.
func HandleSetStandStatus(svc SettlementEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}

		var req overrideRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.SetStandStatus(r.Context(), app.OverrideInput{
			StandID:  mux.Vars(r)["standID"],
			Status:   domain.StandStatus(req.Status),
			HolderID: req.HolderID,
			Note:     req.Note,
			Actor:    actor,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, overrideResponse{
			Stand:          newStandResponse(res.Stand),
			PreviousStatus: string(res.PreviousStatus),
			Terminated:     newObligationPtr(res.Terminated),
		})
	}
}

func newDecisionResponse(res app.SettlementResult) decisionResponse {
	return decisionResponse{
		settlementResponse: settlementResponse{
			Stand:      newStandResponse(res.Stand),
			Obligation: newObligationResponse(res.Obligation),
		},
		Applied: res.Applied,
	}
}
