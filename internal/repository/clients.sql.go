package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createClient = `-- name: CreateClient :one
INSERT INTO clients (user_id, name, email, company)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, name, email, company, created_at
`

type CreateClientParams struct {
	UserID  pgtype.UUID `json:"user_id"`
	Name    string      `json:"name"`
	Email   string      `json:"email"`
	Company pgtype.Text `json:"company"`
}

func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) (Client, error) {
	row := q.db.QueryRow(ctx, createClient,
		arg.UserID,
		arg.Name,
		arg.Email,
		arg.Company,
	)
	var i Client
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Name,
		&i.Email,
		&i.Company,
		&i.CreatedAt,
	)
	return i, err
}

const getClientByID = `-- name: GetClientByID :one
SELECT id, user_id, name, email, company, created_at
FROM clients
WHERE id = $1
`

func (q *Queries) GetClientByID(ctx context.Context, id pgtype.UUID) (Client, error) {
	row := q.db.QueryRow(ctx, getClientByID, id)
	var i Client
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Name,
		&i.Email,
		&i.Company,
		&i.CreatedAt,
	)
	return i, err
}
