package errors

// Response represents a standard error response for HTTP APIs
type Response struct {
	// Error contains the error code in domain.code format
	Error string `json:"error"`

	// Message contains a human-readable error message
	Message string `json:"message"`

	// Details contains optional additional error details
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToResponse converts an Error to an HTTP response structure
func (e *Error) ToResponse() Response {
	return Response{
		Error:   e.Reason(),
		Message: e.Message,
	}
}

// NewResponse creates an error response from any error. Foreign errors are
// reported as a generic internal error so their text does not leak.
func NewResponse(err error) Response {
	var e *Error
	if As(err, &e) {
		return e.ToResponse()
	}
	return Response{
		Error:   string(DomainInternal) + "." + string(CodeInternal),
		Message: "Internal server error",
	}
}
