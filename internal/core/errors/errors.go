package errors

const (
	HttpInternalError            = "internal_error"
	HttpInvalidJsonError         = "invalid_json"
	HttpInvalidBatchError        = "invalid_batch"
	HttpUnknownTableError        = "unknown_table"
	HttpConstraintViolationError = "constraint_violation"
	HttpPayloadTooLargeError     = "payload_too_large"
)

// ErrorResponse is the error response body for change ingestion errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
