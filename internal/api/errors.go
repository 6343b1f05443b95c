package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"mv-advisor/internal/domain"
)

// Error is the JSON body of every failed request.
type Error struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an error from the advisor to its HTTP status. Input
// problems (bad documents, edges naming unknown aliases) are 400; anything
// outside the domain error kinds is 500.
func statusFor(err error) int {
	switch {
	case errors.As(err, new(*domain.NotFoundError)):
		return http.StatusNotFound
	case errors.As(err, new(*domain.ValidationError)), errors.As(err, new(*domain.MalformedEdgeError)):
		return http.StatusBadRequest
	case errors.As(err, new(*domain.ConflictError)):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeRateLimited(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	writeJSON(w, http.StatusTooManyRequests, Error{Code: http.StatusTooManyRequests, Message: "rate limit exceeded"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
