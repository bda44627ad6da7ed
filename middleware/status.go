package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	campusAuth "github.com/MrEthical07/campusAuth"
)

// StatusFor maps an engine error to an HTTP status by its kind.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch campusAuth.KindOf(err) {
	case campusAuth.KindValidation:
		return http.StatusBadRequest
	case campusAuth.KindAuthentication:
		return http.StatusUnauthorized
	case campusAuth.KindAuthorization:
		return http.StatusForbidden
	case campusAuth.KindConflict:
		return http.StatusConflict
	case campusAuth.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error      string   `json:"error"`
	Kind       string   `json:"kind"`
	RetryAfter int64    `json:"retry_after_ms,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// WriteError writes err as a JSON body with the status from StatusFor.
// Internal errors are reported without detail.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := errorBody{Error: err.Error(), Kind: campusAuth.KindOf(err).String()}

	var lockErr *campusAuth.LockoutError
	if errors.As(err, &lockErr) {
		body.RetryAfter = lockErr.RemainingMs()
	}
	var policyErr *campusAuth.PolicyViolationError
	if errors.As(err, &policyErr) {
		body.Error = campusAuth.ErrPasswordPolicy.Error()
		body.Violations = policyErr.Violations
	}
	if status == http.StatusInternalServerError {
		body.Error = http.StatusText(status)
	}

	WriteJSON(w, status, body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorBody{Error: msg, Kind: "validation"})
}
