// Package bootstrap assembles the application and handles one-time
// initialization tasks.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dukerupert/ledgerline/internal/domain"
)

// OwnerConfig describes the freelancer account seeded on first startup.
type OwnerConfig struct {
	Email        string
	Name         string
	BusinessName string
}

// EnsureOwner creates the owner account if it doesn't exist.
// It is idempotent and safe to call on every startup. An empty email skips
// seeding.
func EnsureOwner(ctx context.Context, accounts domain.AccountService, cfg *OwnerConfig, logger *slog.Logger) error {
	if cfg == nil || cfg.Email == "" {
		logger.Debug("bootstrap: no owner configured, skipping")
		return nil
	}

	name := cfg.Name
	if name == "" {
		name = "Owner"
	}

	user, err := accounts.CreateUser(ctx, domain.CreateUserParams{
		Email:        cfg.Email,
		Name:         name,
		BusinessName: cfg.BusinessName,
	})
	if errors.Is(err, domain.ErrDuplicateEmail) {
		logger.Info("bootstrap: owner already exists", "email", cfg.Email)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create owner: %w", err)
	}

	logger.Info("bootstrap: owner created",
		"email", user.Email,
		"user_id", uuid.UUID(user.ID.Bytes).String(),
	)
	return nil
}
