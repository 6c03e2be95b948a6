package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/google/uuid"
)

// MemoryNotificationRepository keeps threads in process memory. It backs the
// "memory" store driver and the engine tests.
type MemoryNotificationRepository struct {
	mu      sync.RWMutex
	threads map[string]*models.NotificationThread
	byKey   map[string]string
}

// NewMemoryNotificationRepository creates an empty MemoryNotificationRepository
func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{
		threads: make(map[string]*models.NotificationThread),
		byKey:   make(map[string]string),
	}
}

func (r *MemoryNotificationRepository) FindByKey(ctx context.Context, key models.ThreadKey) (*models.NotificationThread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return r.threads[id].Clone(), nil
}

func (r *MemoryNotificationRepository) FindByID(ctx context.Context, id string) (*models.NotificationThread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (r *MemoryNotificationRepository) Create(ctx context.Context, thread *models.NotificationThread) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	thread.ThreadKey = thread.Key().String()
	if _, taken := r.byKey[thread.ThreadKey]; taken {
		return ErrConflict
	}
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	thread.Version = 1
	r.threads[thread.ID] = thread.Clone()
	r.byKey[thread.ThreadKey] = thread.ID
	return nil
}

func (r *MemoryNotificationRepository) Update(ctx context.Context, thread *models.NotificationThread, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.threads[thread.ID]
	if !ok || stored.Version != expectedVersion {
		return ErrConflict
	}
	thread.ThreadKey = stored.ThreadKey
	thread.Version = expectedVersion + 1
	r.threads[thread.ID] = thread.Clone()
	return nil
}

func (r *MemoryNotificationRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.threads[id]
	if !ok || stored.Version != expectedVersion {
		return ErrConflict
	}
	delete(r.threads, id)
	delete(r.byKey, stored.ThreadKey)
	return nil
}

func (r *MemoryNotificationRepository) ListByRecipient(ctx context.Context, recipientID string, skip, limit int) ([]models.NotificationThread, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	var owned []models.NotificationThread
	for _, t := range r.threads {
		if t.RecipientID == recipientID {
			owned = append(owned, *t.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].UpdatedAt.Equal(owned[j].UpdatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].UpdatedAt.After(owned[j].UpdatedAt)
	})

	total := int64(len(owned))
	if skip >= len(owned) {
		return []models.NotificationThread{}, total, nil
	}
	owned = owned[skip:]
	if limit > 0 && limit < len(owned) {
		owned = owned[:limit]
	}
	return owned, total, nil
}

func (r *MemoryNotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, t := range r.threads {
		if t.RecipientID == recipientID && !t.Read {
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) MarkAllAsRead(ctx context.Context, recipientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, t := range r.threads {
		if t.RecipientID == recipientID && !t.Read {
			t.Read = true
			t.UpdatedAt = now
			t.Version++
		}
	}
	return nil
}

func (r *MemoryNotificationRepository) Close(ctx context.Context) error {
	return nil
}
