package middleware

import (
	"encoding/json"
	"net/http"
)

// writeFailure writes the {"success": false, "message": ...} envelope used by
// every API response.
func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
