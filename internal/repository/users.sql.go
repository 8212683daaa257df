package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createUser = `-- name: CreateUser :one
INSERT INTO users (email, name, business_name)
VALUES ($1, $2, $3)
RETURNING id, email, name, business_name, created_at
`

type CreateUserParams struct {
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	BusinessName pgtype.Text `json:"business_name"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.Email, arg.Name, arg.BusinessName)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.BusinessName,
		&i.CreatedAt,
	)
	return i, err
}

const getUserByID = `-- name: GetUserByID :one
SELECT id, email, name, business_name, created_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id pgtype.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.BusinessName,
		&i.CreatedAt,
	)
	return i, err
}

const getReminderSettings = `-- name: GetReminderSettings :one
SELECT reminder_settings
FROM user_settings
WHERE user_id = $1
`

func (q *Queries) GetReminderSettings(ctx context.Context, userID pgtype.UUID) ([]byte, error) {
	row := q.db.QueryRow(ctx, getReminderSettings, userID)
	var reminder_settings []byte
	err := row.Scan(&reminder_settings)
	return reminder_settings, err
}

const upsertReminderSettings = `-- name: UpsertReminderSettings :exec
INSERT INTO user_settings (user_id, reminder_settings, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id) DO UPDATE
SET reminder_settings = EXCLUDED.reminder_settings,
    updated_at = NOW()
`

type UpsertReminderSettingsParams struct {
	UserID           pgtype.UUID `json:"user_id"`
	ReminderSettings []byte      `json:"reminder_settings"`
}

func (q *Queries) UpsertReminderSettings(ctx context.Context, arg UpsertReminderSettingsParams) error {
	_, err := q.db.Exec(ctx, upsertReminderSettings, arg.UserID, arg.ReminderSettings)
	return err
}
