package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	settlementerrors "marketdao/contexts/commerce/order-settlement/domain/errors"
	votingerrors "marketdao/contexts/governance/dao-voting/domain/errors"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

func writeCreated(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Message: message})
}

// unprocessable lists validation failures caused by the current state of an
// entity rather than by a malformed request.
var unprocessable = []error{
	votingerrors.ErrInvalidTransition,
	votingerrors.ErrVotingClosed,
	votingerrors.ErrVotingNotStarted,
	votingerrors.ErrVotingStillOpen,
	votingerrors.ErrDelegationNotGranted,
	settlementerrors.ErrInvalidOrderState,
	settlementerrors.ErrInsufficientStock,
	settlementerrors.ErrPriceMismatch,
	settlementerrors.ErrAmountMismatch,
	settlementerrors.ErrSellerInactive,
	settlementerrors.ErrFraudCheckFailed,
	settlementerrors.ErrCommissionNotComputed,
}

func statusFor(err error) int {
	for _, target := range unprocessable {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	switch {
	case errors.Is(err, votingerrors.ErrValidation), errors.Is(err, settlementerrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, votingerrors.ErrNotFound), errors.Is(err, settlementerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, votingerrors.ErrConflict), errors.Is(err, settlementerrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, votingerrors.ErrExternalDependency), errors.Is(err, settlementerrors.ErrExternalDependency):
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"event", "http_request_failed",
			"module", serverModule,
			"layer", "transport",
			"operation", operation,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		message = "internal server error"
	} else {
		s.logger.Debug("request rejected",
			"event", "http_request_rejected",
			"module", serverModule,
			"layer", "transport",
			"operation", operation,
			"status", status,
			"error", err.Error(),
		)
	}
	writeFailure(w, status, message)
}

// decodeJSON treats an empty body as an empty request.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
