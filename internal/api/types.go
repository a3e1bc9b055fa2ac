package api

import (
	"encoding/json"
	"net/http"

	"github.com/hackgods/clinic-functions/internal/functions"
)

// CallableRequest is the body of a callable invocation.
type CallableRequest struct {
	Data json.RawMessage `json:"data"`
}

type CallableResponse struct {
	Result any `json:"result"`
}

type CallableErrorBody struct {
	Status  functions.Code `json:"status"`
	Message string         `json:"message"`
}

type CallableErrorResponse struct {
	Error CallableErrorBody `json:"error"`
}

type DocumentResponse struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeCallableError(w http.ResponseWriter, fe *functions.Error) {
	writeJSON(w, callableStatus(fe.Code), CallableErrorResponse{
		Error: CallableErrorBody{Status: fe.Code, Message: fe.Message},
	})
}

// callableStatus maps a failure category onto its HTTP status.
func callableStatus(code functions.Code) int {
	switch code {
	case functions.CodeInvalidArgument:
		return http.StatusBadRequest
	case functions.CodeUnauthenticated:
		return http.StatusUnauthorized
	case functions.CodeNotFound:
		return http.StatusNotFound
	case functions.CodeAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
