// Package store provides per-user persistence for configuration and
// conversation history.
package store

import (
	"context"

	"github.com/talkerbot/talker/domain"
)

// Store is the persistence interface used by the dispatcher. All writes for
// a single user are atomic; concurrent writers are last-write-wins.
type Store interface {
	// CreateConfig resets the user's configuration record to an empty
	// overrides row, discarding any previous record.
	CreateConfig(ctx context.Context, userID string) error
	// GetConfig returns the stored overrides, or nil when the user has no
	// configuration record.
	GetConfig(ctx context.Context, userID string) (*domain.ConfigOverrides, error)
	// UpdateConfig applies the non-empty fields of the patch to the user's
	// record.
	UpdateConfig(ctx context.Context, userID string, patch domain.ConfigOverrides) error
	// DeleteConfig removes the user's configuration record.
	DeleteConfig(ctx context.Context, userID string) error

	// GetHistory returns the user's conversation log in stored order.
	GetHistory(ctx context.Context, userID string) ([]domain.StoredMessage, error)
	// PutHistory appends messages to the log, or replaces it entirely when
	// replace is true.
	PutHistory(ctx context.Context, userID string, messages []domain.StoredMessage, replace bool) error
	// DeleteHistory removes the user's conversation log.
	DeleteHistory(ctx context.Context, userID string) error

	// DeleteAll removes everything stored for the user.
	DeleteAll(ctx context.Context, userID string) error

	Close() error
}
