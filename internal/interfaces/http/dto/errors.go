package dto

import "net/http"

// Error codes returned in the response envelope. Domain errors keep their
// own code; these cover the transport layer.
const (
	ErrCodeInternal             = "INTERNAL_ERROR"
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodeInvalidToken         = "INVALID_TOKEN"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	ErrCodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	ErrCodeSubscriptionRequired = "SUBSCRIPTION_REQUIRED"
	ErrCodeCheckoutUnavailable  = "CHECKOUT_UNAVAILABLE"
	ErrCodeRateLimited          = "RATE_LIMIT_EXCEEDED"

	ErrCodeInvalidSignature = "INVALID_SIGNATURE"
	ErrCodeMalformedPayload = "MALFORMED_PAYLOAD"
	ErrCodeMissingMetadata  = "MISSING_METADATA"
	ErrCodeStoreWrite       = "STORE_WRITE_FAILURE"
	ErrCodeSessionMissing   = "SESSION_MISSING"
	ErrCodeUserMissing      = "USER_MISSING"
	ErrCodeUnknownPlan      = "UNKNOWN_PLAN"
	ErrCodeInvalidInput     = "INVALID_INPUT"
)

var errorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:             http.StatusInternalServerError,
	ErrCodeBadRequest:           http.StatusBadRequest,
	ErrCodeValidation:           http.StatusBadRequest,
	ErrCodeUnauthorized:         http.StatusUnauthorized,
	ErrCodeTokenExpired:         http.StatusUnauthorized,
	ErrCodeInvalidToken:         http.StatusUnauthorized,
	ErrCodeNotFound:             http.StatusNotFound,
	ErrCodeMethodNotAllowed:     http.StatusMethodNotAllowed,
	ErrCodePayloadTooLarge:      http.StatusRequestEntityTooLarge,
	ErrCodeSubscriptionRequired: http.StatusPaymentRequired,
	ErrCodeCheckoutUnavailable:  http.StatusServiceUnavailable,
	ErrCodeRateLimited:          http.StatusTooManyRequests,

	ErrCodeInvalidSignature: http.StatusBadRequest,
	ErrCodeMalformedPayload: http.StatusBadRequest,
	ErrCodeMissingMetadata:  http.StatusInternalServerError,
	ErrCodeStoreWrite:       http.StatusInternalServerError,
	ErrCodeSessionMissing:   http.StatusBadRequest,
	ErrCodeUserMissing:      http.StatusBadRequest,
	ErrCodeUnknownPlan:      http.StatusBadRequest,
	ErrCodeInvalidInput:     http.StatusBadRequest,
}

// GetHTTPStatus returns the HTTP status for an error code. Unknown codes
// are server errors.
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
