package util

import (
	"encoding/json"
	"net/http"
)

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	RequestID string            `json:"request_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, msg, reqID string) {
	WriteJSON(w, status, APIError{Code: code, Message: msg, RequestID: reqID})
}

// WriteValidationError reports a 400 with a message per offending field.
func WriteValidationError(w http.ResponseWriter, msg string, fields map[string]string, reqID string) {
	WriteJSON(w, http.StatusBadRequest, APIError{Code: "validation_error", Message: msg, RequestID: reqID, Fields: fields})
}
