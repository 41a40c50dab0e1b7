package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const msgServerError = "Internal server error"

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// WriteError renders err as the generic error page for its class. Server errors are
// logged with the request's logger and never leak their cause to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := AsAppError(err)
	status := HTTPStatus(appErr.Code)

	if status >= http.StatusInternalServerError {
		Logger(r.Context()).Error("Request failed", "error", err)
		ServerError(w, r)
		return
	}

	WriteJSON(w, status, map[string]string{
		"error": appErr.Message,
		"path":  r.URL.Path,
	})
}

// PageNotFound is the 404 page.
func PageNotFound(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]string{
		"error": "Page not found",
		"path":  r.URL.Path,
	})
}

// ServerError is the 500 page.
func ServerError(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": msgServerError,
	})
}
