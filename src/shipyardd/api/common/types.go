package common

// ErrorResponse is the error body returned by every endpoint
type ErrorResponse struct {
	Error   string `json:"error" example:"Not found"`
	Code    int    `json:"code" example:"404"`
	Message string `json:"message" example:"Project not found"`
	// Reason is the domain.code identifier of structured errors
	Reason string `json:"reason,omitempty" example:"project.not_found"`
}
