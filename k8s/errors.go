package k8s

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
)

// Reason classifies a failed cluster call.
type Reason string

const (
	ReasonNotFound     Reason = "NotFound"
	ReasonUnauthorized Reason = "Unauthorized"
	ReasonServerError  Reason = "ServerError"
	ReasonUnreachable  Reason = "NetworkUnreachable"
	ReasonValidation   Reason = "ValidationError"
	// ReasonRejected covers the remaining 4xx answers such as 409 AlreadyExists
	// or 422 Invalid.
	ReasonRejected Reason = "Rejected"
)

// maxBodyLen bounds the response text kept on an Error.
const maxBodyLen = 200

// Error is the typed failure returned by every Client operation.
type Error struct {
	Reason     Reason
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Reason, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Reason, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func NewValidationError(msg string, err error) *Error {
	return &Error{Reason: ReasonValidation, Message: msg, Err: err}
}

// NewNotFound builds the error returned for a missing resource without a
// server round trip, as demo mode does.
func NewNotFound(kind Kind, namespace, name string) *Error {
	return &Error{
		Reason:     ReasonNotFound,
		StatusCode: http.StatusNotFound,
		Message:    fmt.Sprintf("%s %s/%s not found", kind, namespace, name),
	}
}

func NewAlreadyExists(kind Kind, namespace, name string) *Error {
	return &Error{
		Reason:     ReasonRejected,
		StatusCode: http.StatusConflict,
		Message:    fmt.Sprintf("%s %s/%s already exists", kind, namespace, name),
	}
}

// Classify converts any error produced while talking to the cluster into an
// *Error. Errors already classified are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	var status apierrors.APIStatus
	if errors.As(err, &status) {
		return fromStatus(status, err)
	}

	var urlErr *url.Error
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Reason: ReasonUnreachable, Message: err.Error(), Err: err}
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return &Error{Reason: ReasonUnreachable, Message: err.Error(), Err: err}
	}

	var syntaxErr *json.SyntaxError
	if runtime.IsMissingKind(err) || runtime.IsMissingVersion(err) || errors.As(err, &syntaxErr) {
		return &Error{
			Reason:  ReasonServerError,
			Body:    TruncateBody(err.Error()),
			Message: "malformed response: " + interstitialHint(err.Error()),
			Err:     err,
		}
	}
	return &Error{Reason: ReasonServerError, Message: err.Error(), Body: TruncateBody(err.Error()), Err: err}
}

func fromStatus(status apierrors.APIStatus, err error) *Error {
	st := status.Status()
	code := int(st.Code)
	body := st.Message
	if st.Details != nil {
		for _, cause := range st.Details.Causes {
			if cause.Type == "UnexpectedServerResponse" {
				body = cause.Message
				break
			}
		}
	}
	e := &Error{StatusCode: code, Body: TruncateBody(body), Message: st.Message, Err: err}
	switch {
	case code == http.StatusNotFound:
		e.Reason = ReasonNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		e.Reason = ReasonUnauthorized
	case code >= 400 && code < 500:
		e.Reason = ReasonRejected
	default:
		e.Reason = ReasonServerError
	}
	return e
}

func interstitialHint(text string) string {
	switch DetectInterstitial([]byte(text)) {
	case InterstitialWarning:
		return "tunnel browser warning page returned instead of JSON"
	case InterstitialError:
		return "tunnel error page returned instead of JSON"
	}
	return "response is not a Kubernetes API object"
}

// TruncateBody shortens response text for display.
func TruncateBody(s string) string {
	r := []rune(s)
	if len(r) <= maxBodyLen {
		return s
	}
	return string(r[:maxBodyLen]) + "..."
}

func reasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// ReasonOf returns the classification of err, or "" for unclassified errors.
func ReasonOf(err error) Reason { return reasonOf(err) }

func IsNotFound(err error) bool     { return reasonOf(err) == ReasonNotFound }
func IsUnauthorized(err error) bool { return reasonOf(err) == ReasonUnauthorized }
func IsServerError(err error) bool  { return reasonOf(err) == ReasonServerError }
func IsUnreachable(err error) bool  { return reasonOf(err) == ReasonUnreachable }
func IsValidation(err error) bool   { return reasonOf(err) == ReasonValidation }
func IsRejected(err error) bool     { return reasonOf(err) == ReasonRejected }
