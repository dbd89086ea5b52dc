package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cimillas/expo-stands/internal/app"
	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// CatalogAdmin is the minimal interface needed for admin catalog endpoints.
type CatalogAdmin interface {
	CreateEvent(ctx context.Context, in app.CreateEventInput) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	SetEventActive(ctx context.Context, eventID string, active bool) (domain.Event, error)
	CreateStand(ctx context.Context, in app.CreateStandInput) (domain.Stand, error)
	ListStands(ctx context.Context, eventID string) ([]domain.Stand, error)
	UpdateStandPrice(ctx context.Context, standID string, price decimal.Decimal) (domain.Stand, error)
}

// HandleAdminEvents returns an HTTP handler for admin event creation/listing.
func HandleAdminEvents(svc CatalogAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			events, err := svc.ListEvents(r.Context())
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			resp := make([]eventResponse, 0, len(events))
			for _, event := range events {
				resp = append(resp, newEventResponse(event))
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req createEventRequest
			if err := decodeJSON(r, &req, false); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}

			var startsAt *time.Time
			if req.StartsAt != "" {
				parsed, err := time.Parse(time.RFC3339, req.StartsAt)
				if err != nil {
					writeError(w, http.StatusBadRequest, codeInvalidStartsAt, "invalid starts_at format")
					return
				}
				startsAt = &parsed
			}

			actor, _ := ActorFromContext(r.Context())
			event, err := svc.CreateEvent(r.Context(), app.CreateEventInput{
				Name:        req.Name,
				OrganizerID: actor.ID,
				StartsAt:    startsAt,
			})
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, newEventResponse(event))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleEventActivation opens or closes an event for reservations.
func HandleEventActivation(svc CatalogAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req activationRequest
		if err := decodeJSON(r, &req, false); err != nil || req.Active == nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		event, err := svc.SetEventActive(r.Context(), mux.Vars(r)["eventID"], *req.Active)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newEventResponse(event))
	}
}

// HandleAdminStands returns an HTTP handler for stand creation/listing
// under one event.
func HandleAdminStands(svc CatalogAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := mux.Vars(r)["eventID"]

		switch r.Method {
		case http.MethodGet:
			stands, err := svc.ListStands(r.Context(), eventID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			resp := make([]standResponse, 0, len(stands))
			for _, stand := range stands {
				resp = append(resp, newStandResponse(stand))
			}
			writeJSON(w, http.StatusOK, resp)
		case http.MethodPost:
			var req createStandRequest
			if err := decodeJSON(r, &req, false); err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
				return
			}
			price, err := decimal.NewFromString(req.Price)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidPrice, domain.ErrInvalidPrice.Error())
				return
			}

			stand, err := svc.CreateStand(r.Context(), app.CreateStandInput{
				EventID:     eventID,
				Name:        req.Name,
				Description: req.Description,
				Price:       price,
			})
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, newStandResponse(stand))
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleStandPrice changes the price charged to future reservations.
func HandleStandPrice(svc CatalogAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req priceRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidPrice, domain.ErrInvalidPrice.Error())
			return
		}

		stand, err := svc.UpdateStandPrice(r.Context(), mux.Vars(r)["standID"], price)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newStandResponse(stand))
	}
}

type createEventRequest struct {
	Name     string `json:"name"`
	StartsAt string `json:"starts_at,omitempty"`
}

type eventResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OrganizerID string    `json:"organizer_id,omitempty"`
	Active      bool      `json:"active"`
	StartsAt    time.Time `json:"starts_at"`
}

func newEventResponse(e domain.Event) eventResponse {
	return eventResponse{
		ID:          e.ID,
		Name:        e.Name,
		OrganizerID: e.OrganizerID,
		Active:      e.Active,
		StartsAt:    e.StartsAt,
	}
}

type activationRequest struct {
	Active *bool `json:"active"`
}

// Prices travel as strings so they never pass through float64.
type createStandRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
}

type priceRequest struct {
	Price string `json:"price"`
}
