package http

import (
	"context"
	"net/http"

	"github.com/cimillas/expo-stands/internal/app"
	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/gorilla/mux"
)

// ReservationEngine is the minimal interface needed for reservation endpoints.
type ReservationEngine interface {
	Reserve(ctx context.Context, in app.ReserveInput) (app.ReserveResult, error)
	CancelReservation(ctx context.Context, in app.CancelInput) (domain.Stand, error)
}

// HandleReserve reserves the stand in the path for the calling participant.
func HandleReserve(svc ReservationEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}

		res, err := svc.Reserve(r.Context(), app.ReserveInput{
			StandID: mux.Vars(r)["standID"],
			Actor:   actor,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, settlementResponse{
			Stand:      newStandResponse(res.Stand),
			Obligation: newObligationResponse(res.Obligation),
		})
	}
}

// HandleCancelReservation releases the caller's hold on the stand in the path.
func HandleCancelReservation(svc ReservationEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}

		stand, err := svc.CancelReservation(r.Context(), app.CancelInput{
			StandID: mux.Vars(r)["standID"],
			Actor:   actor,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newStandResponse(stand))
	}
}
