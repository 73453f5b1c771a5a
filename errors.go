package main

import (
	"encoding/json"
	"net/http"
)

// APIError is the error response body. Only a human-readable message is
// exposed; internal error details never reach the client.
type APIError struct {
	Message string `json:"message"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{Message: message})
}

// writeMessage writes the fixed confirmation body used by the write endpoints.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeSuccess writes a success envelope ({"success":true,"data":...}).
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}
