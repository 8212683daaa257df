package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message only",
			err:      &Error{Code: EINVALID, Message: "invalid input"},
			expected: "invalid input",
		},
		{
			name:     "with operation",
			err:      &Error{Code: EINVALID, Op: "invoice.create", Message: "invalid input"},
			expected: "invoice.create: invalid input",
		},
		{
			name: "with wrapped error",
			err: &Error{
				Code:    EINTERNAL,
				Op:      "invoice.create",
				Message: "failed to save",
				Err:     errors.New("connection refused"),
			},
			expected: "invoice.create: failed to save: connection refused",
		},
		{
			name: "wrapped error without op",
			err: &Error{
				Code:    EINTERNAL,
				Message: "failed to save",
				Err:     errors.New("connection refused"),
			},
			expected: "failed to save: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &Error{Code: EINTERNAL, Message: "wrapped", Err: underlying}

	assert.Equal(t, underlying, err.Unwrap())
	assert.True(t, errors.Is(err, underlying))
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"domain error", &Error{Code: ENOTFOUND}, ENOTFOUND},
		{"wrapped domain error", fmt.Errorf("context: %w", &Error{Code: ECONFLICT}), ECONFLICT},
		{"validation error", NewValidationError("op", "field", "bad"), EINVALID},
		{"plain error", errors.New("boom"), EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorCode(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	const generic = "An internal error occurred. Please try again later."

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"user-facing message", &Error{Code: ENOTFOUND, Message: "Invoice not found"}, "Invoice not found"},
		{"internal hides details", &Error{Code: EINTERNAL, Message: "pg: relation missing"}, generic},
		{"plain error hides details", errors.New("dial tcp: refused"), generic},
		{"validation error", NewValidationError("", "due_date", "is required"), "due_date: is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorMessage(tt.err))
		})
	}
}

func TestErrorOp(t *testing.T) {
	assert.Equal(t, "invoice.send", ErrorOp(&Error{Op: "invoice.send"}))
	assert.Equal(t, "", ErrorOp(errors.New("plain")))
}

func TestErrorf(t *testing.T) {
	err := Errorf(EINVALID, "invoice.create", "unknown currency: %s", "xyz")

	var domainErr *Error
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, EINVALID, domainErr.Code)
	assert.Equal(t, "invoice.create", domainErr.Op)
	assert.Equal(t, "unknown currency: xyz", domainErr.Message)
}

func TestWrapError(t *testing.T) {
	t.Run("wraps non-nil error", func(t *testing.T) {
		underlying := errors.New("db error")
		err := WrapError(underlying, EINTERNAL, "payment.record", "failed to record payment")

		assert.Equal(t, EINTERNAL, ErrorCode(err))
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("returns nil for nil error", func(t *testing.T) {
		assert.NoError(t, WrapError(nil, EINTERNAL, "op", "msg"))
	})
}

func TestIsCode(t *testing.T) {
	assert.True(t, IsCode(ErrInvoiceNotFound, ENOTFOUND))
	assert.False(t, IsCode(ErrInvoiceNotDraft, ENOTFOUND))
	assert.True(t, IsCode(errors.New("x"), EINTERNAL))
}

func TestValidationError(t *testing.T) {
	t.Run("single field", func(t *testing.T) {
		err := NewValidationError("invoice.create", "due_date", "is required")

		assert.Equal(t, "invoice.create: due_date: is required", err.Error())
		assert.True(t, IsValidationError(err))
		assert.Equal(t, map[string]string{"due_date": "is required"}, GetValidationFields(err))
	})

	t.Run("multiple fields", func(t *testing.T) {
		err := &ValidationError{Op: "invoice.create", Fields: map[string]string{"a": "x", "b": "y"}}
		assert.Equal(t, "invoice.create: validation failed for 2 fields", err.Error())
	})

	t.Run("not a validation error", func(t *testing.T) {
		assert.False(t, IsValidationError(errors.New("x")))
		assert.Nil(t, GetValidationFields(errors.New("x")))
	})
}

func TestFromValidator(t *testing.T) {
	type line struct {
		Description string `validate:"required"`
	}
	type input struct {
		Email string `validate:"required,email"`
		Items []line `validate:"min=1,dive"`
	}

	v := validator.New()
	err := v.Struct(input{Email: "nope", Items: []line{{}}})
	require.Error(t, err)

	converted := FromValidator("test.op", err)
	require.True(t, IsValidationError(converted))

	fields := GetValidationFields(converted)
	assert.Equal(t, "failed email", fields["Email"])
	assert.Equal(t, "failed required", fields["Items[0].Description"])
	assert.Equal(t, EINVALID, ErrorCode(converted))

	plain := errors.New("not from validator")
	assert.Equal(t, plain, FromValidator("test.op", plain))
}

func TestConvenienceFunctions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		msg  string
	}{
		{"NotFound", NotFound("invoice.get", "invoice", "abc"), ENOTFOUND, "invoice not found: abc"},
		{"Unauthorized", Unauthorized("api.auth", "bad token"), EUNAUTHORIZED, "bad token"},
		{"Invalid", Invalid("invoice.create", "bad date"), EINVALID, "bad date"},
		{"Conflict", Conflict("invoice.send", "already sent"), ECONFLICT, "already sent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))
			assert.Equal(t, tt.msg, ErrorMessage(tt.err))
		})
	}

	t.Run("Internal keeps cause", func(t *testing.T) {
		cause := errors.New("disk full")
		err := Internal(cause, "invoice.create", "failed to save")
		assert.Equal(t, EINTERNAL, ErrorCode(err))
		assert.True(t, errors.Is(err, cause))
	})
}
