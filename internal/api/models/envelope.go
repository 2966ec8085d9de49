package models

import (
	"encoding/json"
	"net/http"
)

// Envelope wraps every API response body.
//
// Successful responses carry Data (and Count for lists). Failed responses
// carry Error with Success=false.
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Count     *int        `json:"count,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

// NewData creates a successful envelope.
func NewData(data interface{}) *Envelope {
	return &Envelope{Success: true, Data: data}
}

// NewList creates a successful envelope for a list, recording its length.
func NewList(data interface{}, count int) *Envelope {
	return &Envelope{Success: true, Data: data, Count: &count}
}

// NewError creates a failed envelope.
func NewError(requestID, message string) *Envelope {
	return &Envelope{Success: false, Error: message, RequestID: requestID}
}

// Write writes the envelope as JSON with the given status code.
func (e *Envelope) Write(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	if e.RequestID != "" {
		w.Header().Set("X-Request-Id", e.RequestID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}
