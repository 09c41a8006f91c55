package dto

// Response represents a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	RequestID string            `json:"request_id,omitempty"`
	Details   []ValidationError `json:"details,omitempty"`
}

// ValidationError describes one rejected request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewErrorResponseWithData creates an error response that still carries a
// payload, such as the redirect a client should follow after a failure
func NewErrorResponseWithData(code, message string, data any) Response {
	resp := NewErrorResponse(code, message)
	resp.Data = data
	return resp
}

// WithRequestID sets the request id on an error response
func (r Response) WithRequestID(requestID string) Response {
	if r.Error != nil && requestID != "" {
		info := *r.Error
		info.RequestID = requestID
		r.Error = &info
	}
	return r
}

// WebhookResponse is the flat body returned to the payment provider
type WebhookResponse struct {
	Received  bool   `json:"received,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PlanResponse is one entry of the plan catalog
type PlanResponse struct {
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Interval string `json:"interval"`
}

// CheckoutRequest starts a hosted checkout
type CheckoutRequest struct {
	Plan string `json:"plan" binding:"required,plan_name"`
}

// ConfirmResponse tells the client where to go after checkout returns
type ConfirmResponse struct {
	Active          bool   `json:"active"`
	Applied         bool   `json:"applied"`
	RedirectTo      string `json:"redirect_to"`
	RedirectAfterMs int64  `json:"redirect_after_ms"`
	Message         string `json:"message"`
}

// HealthResponse reports liveness and per-dependency checks
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
