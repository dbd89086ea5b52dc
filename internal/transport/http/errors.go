package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cimillas/expo-stands/internal/domain"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidStartsAt      = "invalid_starts_at"
	codeInvalidPrice         = "invalid_price"
	codeValidation           = "validation_error"
	codeUnauthorized         = "unauthorized"
	codeForbidden            = "forbidden"
	codeStandAlreadyReserved = "stand_already_reserved"
	codeNotHolder            = "not_holder"
	codeHoldExpired          = "hold_expired"
	codeInvalidState         = "invalid_state"
	codeNoProofSubmitted     = "no_proof_submitted"
	codeAlreadySettled       = "already_settled"
	codeStandAlreadyExists   = "stand_already_exists"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeServiceError maps an engine error onto a status and stable code.
// Anything unclassified is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case domain.KindAlreadyReserved:
		writeError(w, http.StatusConflict, codeStandAlreadyReserved, "someone else just took this stand")
	case domain.KindNotHolder:
		writeError(w, http.StatusForbidden, codeNotHolder, err.Error())
	case domain.KindInvalidState:
		code := codeInvalidState
		if errors.Is(err, domain.ErrHoldExpired) {
			code = codeHoldExpired
		}
		writeError(w, http.StatusConflict, code, err.Error())
	case domain.KindNoProofSubmitted:
		writeError(w, http.StatusConflict, codeNoProofSubmitted, err.Error())
	case domain.KindAlreadySettled:
		writeError(w, http.StatusConflict, codeAlreadySettled, err.Error())
	case domain.KindForbidden:
		writeError(w, http.StatusForbidden, codeForbidden, err.Error())
	case domain.KindValidation:
		if errors.Is(err, domain.ErrStandAlreadyExists) {
			writeError(w, http.StatusConflict, codeStandAlreadyExists, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"request_id", RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON rejects unknown fields. An empty body decodes to the zero
// value when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
