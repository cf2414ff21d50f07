package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"kol-scoreboard/internal/ratelimit"
)

// ValidationError is a rejected client input. Surfaced as 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func missing(field string) *ValidationError {
	return &ValidationError{Field: field, Message: field + " is required"}
}

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidation(w http.ResponseWriter, err *ValidationError) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Message, Field: err.Field})
}

func writeRateLimited(w http.ResponseWriter, err error) {
	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) && exceeded.RetryAfter > 0 {
		secs := int(math.Ceil(exceeded.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: "Rate limit exceeded"})
}

func writeInternal(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{Message: message})
}
