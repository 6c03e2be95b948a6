package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/nano-midea/notifier/internal/models"
)

var (
	// ErrNotFound is returned when no thread matches the lookup.
	ErrNotFound = errors.New("notification thread not found")
	// ErrConflict is returned when a conditional write lost a race: the version
	// moved on, the row vanished, or another writer created the same thread key.
	ErrConflict = errors.New("notification thread changed concurrently")
)

// NotificationRepository persists notification threads.
//
// Writes are conditional: Create fails with ErrConflict when the thread key is
// taken, Update and Delete fail with ErrConflict unless the stored version equals
// expectedVersion. Update bumps the version and writes it back into the thread.
type NotificationRepository interface {
	FindByKey(ctx context.Context, key models.ThreadKey) (*models.NotificationThread, error)
	FindByID(ctx context.Context, id string) (*models.NotificationThread, error)
	Create(ctx context.Context, thread *models.NotificationThread) error
	Update(ctx context.Context, thread *models.NotificationThread, expectedVersion int64) error
	Delete(ctx context.Context, id string, expectedVersion int64) error
	ListByRecipient(ctx context.Context, recipientID string, skip, limit int) ([]models.NotificationThread, int64, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkAllAsRead(ctx context.Context, recipientID string) error
	Close(ctx context.Context) error
}
