package middleware

import (
	"mime"
	"net/http"
)

// allowedContentTypes are the request bodies the gateway accepts on
// POST/PUT; anything else is rejected before it reaches a handler.
var allowedContentTypes = map[string]bool{
	"application/json": true,
	"text/plain":       true,
}

// BodyLimitMiddleware caps request bodies at maxBytes and rejects
// POST/PUT requests whose Content-Type isn't in the whitelist.
func BodyLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut {
				ct := r.Header.Get("Content-Type")
				if ct != "" {
					mediaType, _, err := mime.ParseMediaType(ct)
					if err != nil || !allowedContentTypes[mediaType] {
						http.Error(w, `{"error":"unsupported_media_type","message":"content type not accepted"}`, http.StatusUnsupportedMediaType)
						return
					}
				}
				if r.ContentLength > maxBytes {
					http.Error(w, `{"error":"request_too_large","message":"request body exceeds the size limit"}`, http.StatusRequestEntityTooLarge)
					return
				}
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
