package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/session"
)

type errorResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// statusFor maps a manager or client error to the HTTP status the API
// answers with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	}
	var kerr *k8s.Error
	if !errors.As(err, &kerr) {
		return http.StatusInternalServerError
	}
	switch kerr.Reason {
	case k8s.ReasonNotFound:
		return http.StatusNotFound
	case k8s.ReasonUnauthorized:
		if kerr.StatusCode == http.StatusForbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case k8s.ReasonValidation:
		return http.StatusBadRequest
	case k8s.ReasonRejected:
		if kerr.StatusCode >= 400 && kerr.StatusCode < 500 {
			return kerr.StatusCode
		}
		return http.StatusBadRequest
	case k8s.ReasonUnreachable, k8s.ReasonServerError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return "NotConnected"
	case errors.Is(err, session.ErrSuperseded):
		return "Superseded"
	}
	if reason := k8s.ReasonOf(err); reason != "" {
		return string(reason)
	}
	return "InternalError"
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	writeJSON(w, code, errorResponse{Reason: reasonFor(err), Message: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
