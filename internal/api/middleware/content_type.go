package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/commutedeck/commutedeck/internal/api/models"
)

// ContentTypeJSON defaults the response Content-Type to application/json.
// Handlers may still set their own.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects request bodies that are not JSON with 415. Requests
// without a body or without a Content-Type pass, so bodyless admin commands
// need no header.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType := r.Header.Get("Content-Type"); contentType != "" && r.ContentLength != 0 && !isJSONMediaType(contentType) {
			models.NewError(GetRequestID(r.Context()), "Content-Type must be application/json").
				Write(w, http.StatusUnsupportedMediaType)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isJSONMediaType accepts application/json and structured +json types.
func isJSONMediaType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
