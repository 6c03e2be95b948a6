package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type postgresNotificationRepository struct {
	db *gorm.DB
}

// NewPostgresNotificationRepository creates a gorm-backed NotificationRepository.
// The *gorm.DB must be opened with TranslateError so unique violations surface
// as gorm.ErrDuplicatedKey.
func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) FindByKey(ctx context.Context, key models.ThreadKey) (*models.NotificationThread, error) {
	return r.first(ctx, "thread_key = ?", key.String())
}

func (r *postgresNotificationRepository) FindByID(ctx context.Context, id string) (*models.NotificationThread, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *postgresNotificationRepository) first(ctx context.Context, query string, arg any) (*models.NotificationThread, error) {
	var thread models.NotificationThread
	if err := r.db.WithContext(ctx).Where(query, arg).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &thread, nil
}

func (r *postgresNotificationRepository) Create(ctx context.Context, thread *models.NotificationThread) error {
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	thread.ThreadKey = thread.Key().String()
	thread.Version = 1
	if err := r.db.WithContext(ctx).Create(thread).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *postgresNotificationRepository) Update(ctx context.Context, thread *models.NotificationThread, expectedVersion int64) error {
	res := r.db.WithContext(ctx).Model(&models.NotificationThread{}).
		Where("id = ? AND version = ?", thread.ID, expectedVersion).
		Updates(map[string]interface{}{
			"actors":     thread.Actors,
			"message":    thread.Message,
			"is_read":    thread.Read,
			"updated_at": thread.UpdatedAt,
			"version":    expectedVersion + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	thread.Version = expectedVersion + 1
	return nil
}

func (r *postgresNotificationRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	res := r.db.WithContext(ctx).Where("id = ? AND version = ?", id, expectedVersion).Delete(&models.NotificationThread{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *postgresNotificationRepository) ListByRecipient(ctx context.Context, recipientID string, skip, limit int) ([]models.NotificationThread, int64, error) {
	var threads []models.NotificationThread
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.NotificationThread{}).Where("recipient_id = ?", recipientID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := db.Where("recipient_id = ?", recipientID).
		Order("updated_at DESC").Order("id DESC").
		Offset(skip)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&threads).Error; err != nil {
		return nil, 0, err
	}
	return threads, total, nil
}

func (r *postgresNotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.NotificationThread{}).
		Where("recipient_id = ? AND is_read = false", recipientID).Count(&count).Error
	return count, err
}

func (r *postgresNotificationRepository) MarkAllAsRead(ctx context.Context, recipientID string) error {
	return r.db.WithContext(ctx).Model(&models.NotificationThread{}).
		Where("recipient_id = ? AND is_read = false", recipientID).
		Updates(map[string]interface{}{
			"is_read":    true,
			"updated_at": time.Now(),
			"version":    gorm.Expr("version + 1"),
		}).Error
}

// Close is a no-op; the connection pool is owned by config.DB.
func (r *postgresNotificationRepository) Close(ctx context.Context) error {
	return nil
}
