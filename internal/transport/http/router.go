package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Deps are the services the router dispatches to. Metrics may be nil.
type Deps struct {
	Reservations ReservationEngine
	Settlement   SettlementEngine
	Queries      StandQueries
	Catalog      CatalogAdmin
	JWTSecret    []byte
	Ready        map[string]Pinger
	Metrics      http.Handler
}

// NewRouter registers every route. Reads of the stand grid are public;
// everything else needs a bearer token, and decisions, overrides and
// catalog changes need an organizer or admin.
func NewRouter(d Deps) *mux.Router {
	auth := Authenticate(d.JWTSecret)
	privileged := func(h http.Handler) http.Handler {
		return auth(RequirePrivileged(h))
	}

	r := mux.NewRouter()
	r.NotFoundHandler = NotFoundHandler()
	r.MethodNotAllowedHandler = MethodNotAllowedHandler()

	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.Handle("/ready", ReadyHandler(d.Ready)).Methods(http.MethodGet)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}

	r.Handle("/events/{eventID}/stands", HandleEventStands(d.Queries)).Methods(http.MethodGet)
	r.Handle("/stands/{standID}", HandleGetStand(d.Queries)).Methods(http.MethodGet)
	r.Handle("/stands/{standID}/obligations", privileged(HandleStandObligations(d.Queries))).Methods(http.MethodGet)

	r.Handle("/stands/{standID}/reservation", auth(HandleReserve(d.Reservations))).Methods(http.MethodPost)
	r.Handle("/stands/{standID}/reservation", auth(HandleCancelReservation(d.Reservations))).Methods(http.MethodDelete)

	r.Handle("/obligations/{obligationID}/proof", auth(HandleSubmitProof(d.Settlement))).Methods(http.MethodPost)
	r.Handle("/obligations/{obligationID}/approve", privileged(HandleApprove(d.Settlement))).Methods(http.MethodPost)
	r.Handle("/obligations/{obligationID}/reject", privileged(HandleReject(d.Settlement))).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Handle("/events", privileged(HandleAdminEvents(d.Catalog))).Methods(http.MethodGet, http.MethodPost)
	admin.Handle("/events/{eventID}/activation", privileged(HandleEventActivation(d.Catalog))).Methods(http.MethodPost)
	admin.Handle("/events/{eventID}/stands", privileged(HandleAdminStands(d.Catalog))).Methods(http.MethodGet, http.MethodPost)
	admin.Handle("/stands/{standID}/price", privileged(HandleStandPrice(d.Catalog))).Methods(http.MethodPatch)
	admin.Handle("/stands/{standID}/status", privileged(HandleSetStandStatus(d.Settlement))).Methods(http.MethodPut)

	return r
}
