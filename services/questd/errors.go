package questd

import (
	"encoding/json"
	"errors"
	"net/http"

	"questvault/native/access"
	"questvault/native/custody"
	"questvault/native/endless"
	"questvault/native/quest"
)

var (
	errBadRequest     = errors.New("questd: bad request")
	errNotImplemented = errors.New("questd: not enabled")
)

type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

// statusFor maps a ledger error onto an HTTP status: validation 400,
// authorization 403, unknown quests 404 and state or resource conflicts 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, endless.ErrInvalidSignature),
		errors.Is(err, access.ErrZeroAddress),
		errors.Is(err, custody.ErrZeroAddress):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, endless.ErrUnauthorized), errors.Is(err, endless.ErrSignerMismatch):
		return http.StatusForbidden
	case errors.Is(err, quest.ErrQuestNotFound):
		return http.StatusNotFound
	case errors.Is(err, endless.ErrAlreadyMinted):
		return http.StatusConflict
	case errors.Is(err, errNotImplemented):
		return http.StatusNotImplemented
	}
	switch quest.Classify(err) {
	case quest.ClassValidation:
		return http.StatusBadRequest
	case quest.ClassAuthorization:
		return http.StatusForbidden
	case quest.ClassState, quest.ClassResource:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}
	if class := quest.Classify(err); class != quest.ClassUnknown {
		body.Class = class.String()
	}
	if status == http.StatusInternalServerError {
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
