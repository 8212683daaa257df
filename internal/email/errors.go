package email

import "fmt"

// These constants mirror domain error codes to avoid circular imports.
// The handler layer maps these to HTTP status codes.
const (
	codeNotFound = "not_found"
	codeInvalid  = "invalid"
)

// EmailError represents an email-specific error with a code and message.
type EmailError struct {
	Code    string
	Message string
}

func (e *EmailError) Error() string {
	return e.Message
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *EmailError) ErrorCode() string {
	return e.Code
}

func newEmailError(code, message string) *EmailError {
	return &EmailError{Code: code, Message: message}
}

var (
	// ErrNoRecipient is returned when an email has no recipient address.
	ErrNoRecipient = newEmailError(codeInvalid, "Email has no recipient")

	// ErrInvalidFromAddress is returned when the from address is invalid.
	ErrInvalidFromAddress = newEmailError(codeInvalid, "Invalid from email address")
)

// ErrTemplateNotFound creates a template not found error.
func ErrTemplateNotFound(templateName string) error {
	return &EmailError{
		Code:    codeNotFound,
		Message: fmt.Sprintf("Email template %s not found", templateName),
	}
}
