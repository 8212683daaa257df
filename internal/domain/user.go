package domain

import (
	"context"

	"github.com/dukerupert/ledgerline/internal/repository"
)

// CreateUserParams contains the input for registering a freelancer.
type CreateUserParams struct {
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"required,max=200"`
	BusinessName string `json:"business_name" validate:"max=200"`
}

// CreateClientParams contains the input for adding a client to a freelancer's book.
type CreateClientParams struct {
	UserID  string `json:"user_id" validate:"required,uuid"`
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Company string `json:"company" validate:"max=200"`
}

var ErrDuplicateEmail = &Error{Code: ECONFLICT, Message: "A user with this email already exists"}

// AccountService manages freelancers and their clients.
type AccountService interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*repository.User, error)
	GetUser(ctx context.Context, userID string) (*repository.User, error)
	CreateClient(ctx context.Context, params CreateClientParams) (*repository.Client, error)
}
