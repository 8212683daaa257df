package repository

import (
	"context"
)

const createWebhookEvent = `-- name: CreateWebhookEvent :execrows
INSERT INTO webhook_events (provider, provider_event_id, event_type)
VALUES ($1, $2, $3)
ON CONFLICT (provider, provider_event_id) DO NOTHING
`

type CreateWebhookEventParams struct {
	Provider        string `json:"provider"`
	ProviderEventID string `json:"provider_event_id"`
	EventType       string `json:"event_type"`
}

// CreateWebhookEvent records a processed event. It affects zero rows when
// the event was already recorded.
func (q *Queries) CreateWebhookEvent(ctx context.Context, arg CreateWebhookEventParams) (int64, error) {
	result, err := q.db.Exec(ctx, createWebhookEvent, arg.Provider, arg.ProviderEventID, arg.EventType)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
