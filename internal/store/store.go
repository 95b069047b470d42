// Package store defines the persistence interface and its implementations.
package store

import (
	"context"
	"time"

	"dealalert/internal/model"
)

// Storage is the interface for all persistence operations.
//
// Queue entries are single-writer: they are inserted by the routing
// pipeline and their sent_at is set exactly once by MarkEntriesSent.
type Storage interface {
	CreateItem(ctx context.Context, item *model.Item) error
	GetItems(ctx context.Context, ids []int64) (map[int64]model.Item, error)

	CreateRecipient(ctx context.Context, r *model.Recipient) error
	GetRecipients(ctx context.Context, ids []int64) (map[int64]model.Recipient, error)

	CreateRule(ctx context.Context, rule *model.AlertRule) error
	ListRules(ctx context.Context) ([]model.AlertRule, error)
	DeleteRule(ctx context.Context, id int64) error

	UpsertPreference(ctx context.Context, p *model.DeliveryPreference) error
	GetPreferences(ctx context.Context, recipientIDs []int64) (map[int64]model.DeliveryPreference, error)

	EnqueueEntries(ctx context.Context, entries []model.QueueEntry) error
	// ListPendingDigest returns unsent entries created before the cutoff
	// whose recipient currently has digests enabled, ordered by recipient
	// and then by insertion order.
	ListPendingDigest(ctx context.Context, before time.Time) ([]model.QueueEntry, error)
	// MarkEntriesSent sets sent_at on the given entries, skipping any
	// already marked.
	MarkEntriesSent(ctx context.Context, ids []int64, at time.Time) error

	Close() error
}
