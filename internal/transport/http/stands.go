package http

import (
	"context"
	"net/http"

	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/gorilla/mux"
)

// StandQueries is the minimal interface needed for read endpoints.
type StandQueries interface {
	GetStandsForEvent(ctx context.Context, eventID string) ([]domain.StandView, error)
	GetStand(ctx context.Context, standID string) (domain.StandView, error)
	ListObligations(ctx context.Context, standID string) ([]domain.Obligation, error)
}

// HandleEventStands lists every stand of an event with its payment status.
func HandleEventStands(svc StandQueries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.GetStandsForEvent(r.Context(), mux.Vars(r)["eventID"])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]standViewResponse, 0, len(views))
		for _, v := range views {
			resp = append(resp, newStandViewResponse(v))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func HandleGetStand(svc StandQueries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetStand(r.Context(), mux.Vars(r)["standID"])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newStandViewResponse(view))
	}
}

// HandleStandObligations returns the obligation history, newest first.
func HandleStandObligations(svc StandQueries) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obligations, err := svc.ListObligations(r.Context(), mux.Vars(r)["standID"])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]obligationResponse, 0, len(obligations))
		for _, ob := range obligations {
			resp = append(resp, newObligationResponse(ob))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
