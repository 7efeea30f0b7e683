package httpx

import "net/http"

const (
	StatusOK                 = http.StatusOK                  // Successful request
	StatusBadRequest         = http.StatusBadRequest          // Validation or malformed input
	StatusForbidden          = http.StatusForbidden           // Request refused
	StatusNotFound           = http.StatusNotFound            // Resource not found
	StatusTooManyRequests    = http.StatusTooManyRequests     // Rate limiting
	StatusInternalError      = http.StatusInternalServerError // Unexpected server error
	StatusServiceUnavailable = http.StatusServiceUnavailable  // Dependency failure
)
