package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const maxStringLength = 10000

// Substrings rejected anywhere inside a request payload. Matching is
// case-insensitive on the raw string values, nested at any depth.
var forbiddenPatterns = []string{
	"'; drop table",
	"<script",
	"javascript:",
	"onerror=",
	"onload=",
	"../",
	"..\\",
}

var mutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// withValidation screens request bodies on mutating methods before any
// handler sees them. Oversized bodies get 413, anything unparseable or
// containing an injection marker gets 400. The body is restored afterwards
// so handlers can decode it normally.
func (a *API) withValidation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutatingMethods[r.Method] || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}

		limited := http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
		body, err := io.ReadAll(limited)
		if err != nil {
			a.deny(w, r, stageValidate, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if len(body) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			a.deny(w, r, stageValidate, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		if detail := scanValue(payload); detail != "" {
			a.deny(w, r, stageValidate, http.StatusBadRequest, detail)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// scanValue walks a decoded payload and returns a rejection detail, or "".
func scanValue(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > maxStringLength {
			return "string value exceeds maximum length"
		}
		lower := strings.ToLower(val)
		for _, pattern := range forbiddenPatterns {
			if strings.Contains(lower, pattern) {
				return "payload contains forbidden content"
			}
		}
	case map[string]any:
		for key, item := range val {
			if detail := scanValue(key); detail != "" {
				return detail
			}
			if detail := scanValue(item); detail != "" {
				return detail
			}
		}
	case []any:
		for _, item := range val {
			if detail := scanValue(item); detail != "" {
				return detail
			}
		}
	}
	return ""
}
