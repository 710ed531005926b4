package chessdto

// DomainError is the error body of every failed API call.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena service error"
}

// ErrorResponse wraps DomainError on the wire.
type ErrorResponse struct {
	Error DomainError `json:"error"`
}
