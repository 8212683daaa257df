package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/ledgerline/internal/domain"
	"github.com/dukerupert/ledgerline/internal/repository"
)

type accountService struct {
	store    repository.Store
	logger   *slog.Logger
	validate *validator.Validate
}

// NewAccountService creates the service managing freelancers and clients.
func NewAccountService(store repository.Store, logger *slog.Logger) domain.AccountService {
	return &accountService{
		store:    store,
		logger:   logger.With("component", "accounts"),
		validate: validator.New(),
	}
}

func (s *accountService) CreateUser(ctx context.Context, params domain.CreateUserParams) (*repository.User, error) {
	const op = "account.create_user"

	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.Name = strings.TrimSpace(params.Name)
	if err := s.validate.Struct(params); err != nil {
		return nil, domain.FromValidator(op, err)
	}

	user, err := s.store.CreateUser(ctx, repository.CreateUserParams{
		Email:        params.Email,
		Name:         params.Name,
		BusinessName: text(strings.TrimSpace(params.BusinessName)),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, internalErr(err, op, "failed to create user")
	}

	s.logger.InfoContext(ctx, "user created", "user_id", uuidString(user.ID))
	return &user, nil
}

func (s *accountService) GetUser(ctx context.Context, userID string) (*repository.User, error) {
	const op = "account.get_user"

	id, err := parseUUID(op, "user_id", userID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, internalErr(err, op, "failed to load user")
	}
	return &user, nil
}

func (s *accountService) CreateClient(ctx context.Context, params domain.CreateClientParams) (*repository.Client, error) {
	const op = "account.create_client"

	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.Name = strings.TrimSpace(params.Name)
	if err := s.validate.Struct(params); err != nil {
		return nil, domain.FromValidator(op, err)
	}

	userID, err := parseUUID(op, "user_id", params.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, internalErr(err, op, "failed to load user")
	}

	client, err := s.store.CreateClient(ctx, repository.CreateClientParams{
		UserID:  userID,
		Name:    params.Name,
		Email:   params.Email,
		Company: text(strings.TrimSpace(params.Company)),
	})
	if err != nil {
		return nil, internalErr(err, op, "failed to create client")
	}

	s.logger.InfoContext(ctx, "client created", "client_id", uuidString(client.ID), "user_id", params.UserID)
	return &client, nil
}
