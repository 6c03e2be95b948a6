package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories lists every backend that can run without external services.
func storeFactories(t *testing.T) map[string]func() NotificationRepository {
	return map[string]func() NotificationRepository{
		"memory": func() NotificationRepository { return NewMemoryNotificationRepository() },
		"sqlite": func() NotificationRepository {
			repo, err := NewSQLiteNotificationRepository(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { repo.Close(context.Background()) })
			return repo
		},
	}
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newThread(recipient, post string, at time.Time, actors ...string) *models.NotificationThread {
	return &models.NotificationThread{
		RecipientID: recipient,
		Kind:        models.KindLike,
		Subject:     models.Subject{PostID: post},
		Actors:      actors,
		Message:     "msg",
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func TestNotificationRepositoryContract(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("create and find", func(t *testing.T) {
				repo := factory()
				ctx := context.Background()

				th := newThread("bob", "p1", base, "ana")
				require.NoError(t, repo.Create(ctx, th))
				assert.NotEmpty(t, th.ID)
				assert.Equal(t, int64(1), th.Version)

				byKey, err := repo.FindByKey(ctx, th.Key())
				require.NoError(t, err)
				assert.Equal(t, th.ID, byKey.ID)
				assert.Equal(t, models.ActorList{"ana"}, byKey.Actors)
				assert.True(t, base.Equal(byKey.UpdatedAt))

				byID, err := repo.FindByID(ctx, th.ID)
				require.NoError(t, err)
				assert.Equal(t, th.Key(), byID.Key())

				_, err = repo.FindByID(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = repo.FindByKey(ctx, models.ThreadKey{RecipientID: "bob", Kind: models.KindFollow})
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("duplicate key conflicts", func(t *testing.T) {
				repo := factory()
				ctx := context.Background()

				require.NoError(t, repo.Create(ctx, newThread("bob", "p1", base, "ana")))
				err := repo.Create(ctx, newThread("bob", "p1", base, "cy"))
				assert.ErrorIs(t, err, ErrConflict)
			})

			t.Run("update checks version", func(t *testing.T) {
				repo := factory()
				ctx := context.Background()

				th := newThread("bob", "p1", base, "ana")
				require.NoError(t, repo.Create(ctx, th))

				next := th.Clone()
				next.Actors = models.ActorList{"cy", "ana"}
				next.UpdatedAt = base.Add(time.Minute)
				require.NoError(t, repo.Update(ctx, next, th.Version))
				assert.Equal(t, int64(2), next.Version)

				stale := th.Clone()
				stale.Actors = models.ActorList{"dee", "ana"}
				assert.ErrorIs(t, repo.Update(ctx, stale, th.Version), ErrConflict)

				got, err := repo.FindByID(ctx, th.ID)
				require.NoError(t, err)
				assert.Equal(t, models.ActorList{"cy", "ana"}, got.Actors)
				assert.Equal(t, int64(2), got.Version)
			})

			t.Run("delete checks version", func(t *testing.T) {
				repo := factory()
				ctx := context.Background()

				th := newThread("bob", "p1", base, "ana")
				require.NoError(t, repo.Create(ctx, th))

				assert.ErrorIs(t, repo.Delete(ctx, th.ID, th.Version+1), ErrConflict)
				require.NoError(t, repo.Delete(ctx, th.ID, th.Version))

				_, err := repo.FindByKey(ctx, th.Key())
				assert.ErrorIs(t, err, ErrNotFound)

				// the key is free again
				require.NoError(t, repo.Create(ctx, newThread("bob", "p1", base, "cy")))
			})

			t.Run("list newest first with paging", func(t *testing.T) {
				repo := factory()
				ctx := context.Background()

				for i, post := range []string{"p1", "p2", "p3"} {
					require.NoError(t, repo.Create(ctx, newThread("bob", post, base.Add(time.Duration(i)*time.Minute), "ana")))
				}
				require.NoError(t, repo.Create(ctx, newThread("cy", "p9", base, "ana")))

				page, total, err := repo.ListByRecipient(ctx, "bob", 0, 2)
				require.NoError(t, err)
				assert.Equal(t, int64(3), total)
				require.Len(t, page, 2)
				assert.Equal(t, "p3", page[0].Subject.PostID)
				assert.Equal(t, "p2", page[1].Subject.PostID)

				page, _, err = repo.ListByRecipient(ctx, "bob", 2, 2)
				require.NoError(t, err)
				require.Len(t, page, 1)
				assert.Equal(t, "p1", page[0].Subject.PostID)
			})

			t.Run("unread count and mark all", func(t *testing.T) {
				repo := factory()
				ctx := context.Background()

				a := newThread("bob", "p1", base, "ana")
				b := newThread("bob", "p2", base, "ana")
				other := newThread("cy", "p3", base, "ana")
				for _, th := range []*models.NotificationThread{a, b, other} {
					require.NoError(t, repo.Create(ctx, th))
				}

				count, err := repo.CountUnread(ctx, "bob")
				require.NoError(t, err)
				assert.Equal(t, int64(2), count)

				require.NoError(t, repo.MarkAllAsRead(ctx, "bob"))

				count, err = repo.CountUnread(ctx, "bob")
				require.NoError(t, err)
				assert.Zero(t, count)
				count, err = repo.CountUnread(ctx, "cy")
				require.NoError(t, err)
				assert.Equal(t, int64(1), count)

				// stale writers lose against the bulk read
				assert.ErrorIs(t, repo.Update(ctx, a.Clone(), a.Version), ErrConflict)
				got, err := repo.FindByID(ctx, a.ID)
				require.NoError(t, err)
				assert.True(t, got.Read)
			})
		})
	}
}

func TestSQLiteReopenKeepsSchema(t *testing.T) {
	path := t.TempDir() + "/notifier.db"
	ctx := context.Background()

	repo, err := NewSQLiteNotificationRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, newThread("bob", "p1", base, "ana")))
	require.NoError(t, repo.Close(ctx))

	repo, err = NewSQLiteNotificationRepository(path)
	require.NoError(t, err)
	defer repo.Close(ctx)

	count, err := repo.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
