// Package notifications turns social events into coalesced notification
// threads, keeps the unread count derived from the store, and fans changes
// out to live subscribers.
//
// A thread is keyed by (recipient, kind, subject). Events with the same key
// fold into one thread whose actor list is kept most-recent-first without
// duplicates. Every read-modify-write on a key is serialized in process by a
// per-key lock and across processes by the store's version check; conflicts
// are retried a bounded number of times. Updates are published only after the
// store accepted the write.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anonto42/nano-midea/notifier/internal/metrics"
	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/anonto42/nano-midea/notifier/internal/pubsub"
	"github.com/anonto42/nano-midea/notifier/internal/repositories"
	"github.com/anonto42/nano-midea/notifier/validators"
	"github.com/go-playground/validator/v10"
)

const (
	defaultMaxRetries   = 5
	defaultStoreTimeout = 5 * time.Second
	DefaultPageSize     = 20
	MaxPageSize         = 50
)

// Directory resolves actor ids to display names. Ids it does not know are
// simply left out of the result.
type Directory interface {
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
}

// Snapshot is the full state a client loads on connect or poll.
type Snapshot struct {
	UnreadCount int64                       `json:"unreadCount"`
	Threads     []models.NotificationThread `json:"threads"`
	Total       int64                       `json:"total"`
	Page        int                         `json:"page"`
	Limit       int                         `json:"limit"`
}

// Topic is the bus topic carrying updates for one recipient.
func Topic(recipientID string) string {
	return "notifications:" + recipientID
}

// Engine is the notification aggregation and delivery core.
//
// Thread Safety: Engine is safe for concurrent use.
type Engine struct {
	repo         repositories.NotificationRepository
	bus          *pubsub.Bus[models.ThreadUpdate]
	users        Directory
	validate     *validator.Validate
	locks        *keyLock
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
	maxRetries   int
	storeTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithDirectory sets the name resolver used when composing messages.
func WithDirectory(d Directory) Option {
	return func(e *Engine) { e.users = d }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxRetries bounds how often a conflicting write is retried.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithStoreTimeout bounds each store call. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) { e.storeTimeout = d }
}

// NewEngine wires an Engine to its store and bus.
func NewEngine(repo repositories.NotificationRepository, bus *pubsub.Bus[models.ThreadUpdate], opts ...Option) *Engine {
	e := &Engine{
		repo:         repo,
		bus:          bus,
		validate:     validators.New(),
		locks:        newKeyLock(),
		logger:       slog.Default(),
		now:          time.Now,
		maxRetries:   defaultMaxRetries,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordEvent applies ev to its thread and publishes the result. It returns
// nil, nil when the event changes nothing: a repeated add, a remove of an
// absent actor, or an actor acting on their own content.
//
// An empty Action means add, so a repeated add never withdraws an actor.
// Sources that report follow/unfollow (or like/unlike) as one repeated event
// must send ActionToggle; a second toggle from the same actor removes them
// and deletes the thread once no actors remain.
func (e *Engine) RecordEvent(ctx context.Context, ev models.Event) (*models.ThreadUpdate, error) {
	if ev.Action == "" {
		ev.Action = models.ActionAdd
	}
	if err := ValidateEvent(e.validate, ev); err != nil {
		e.metrics.RecordEvent(kindLabel(ev.Kind), metrics.OutcomeInvalid)
		return nil, err
	}
	if ev.ActorID == ev.RecipientID {
		e.metrics.RecordEvent(kindLabel(ev.Kind), metrics.OutcomeNoop)
		return nil, nil
	}

	key := ev.Key().String()
	unlock := e.locks.Lock(key)
	defer unlock()

	var (
		update   *models.ThreadUpdate
		decision Decision
		err      error
	)
	for attempt := 0; ; attempt++ {
		decision, update, err = e.apply(ctx, ev)
		if !errors.Is(err, repositories.ErrConflict) {
			break
		}
		if attempt >= e.maxRetries {
			e.metrics.RecordEvent(kindLabel(ev.Kind), metrics.OutcomeFailed)
			return nil, fmt.Errorf("%w: thread %s after %d attempts", ErrConflict, key, attempt+1)
		}
		e.metrics.RecordConflictRetry()
		e.logger.Debug("notification write conflict, retrying", "key", key, "attempt", attempt+1)
	}
	if err != nil {
		e.metrics.RecordEvent(kindLabel(ev.Kind), metrics.OutcomeFailed)
		return nil, storeError(err)
	}

	switch decision {
	case DecisionNoop:
		e.metrics.RecordEvent(kindLabel(ev.Kind), metrics.OutcomeNoop)
		return nil, nil
	case DecisionCreate:
		e.metrics.RecordEvent(kindLabel(ev.Kind), metrics.OutcomeCreated)
	case DecisionDelete:
		e.metrics.RecordEvent(kindLabel(ev.Kind), metrics.OutcomeDeleted)
	default:
		e.metrics.RecordEvent(kindLabel(ev.Kind), metrics.OutcomeUpdated)
	}

	e.publish(update)
	return update, nil
}

// apply runs one fetch-decide-persist cycle. A repositories.ErrConflict return
// means the cycle lost a race and may be rerun from scratch.
func (e *Engine) apply(ctx context.Context, ev models.Event) (Decision, *models.ThreadUpdate, error) {
	current, err := e.findByKey(ctx, ev.Key())
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return DecisionNoop, nil, err
	}

	decision, next := Aggregate(current, ev, e.now())
	switch decision {
	case DecisionNoop:
		return decision, nil, nil
	case DecisionCreate:
		next.Message = e.compose(ctx, next)
		err = e.store(ctx, func(ctx context.Context) error { return e.repo.Create(ctx, next) })
	case DecisionUpdate:
		next.Message = e.compose(ctx, next)
		err = e.store(ctx, func(ctx context.Context) error { return e.repo.Update(ctx, next, current.Version) })
	case DecisionDelete:
		err = e.store(ctx, func(ctx context.Context) error { return e.repo.Delete(ctx, current.ID, current.Version) })
	}
	if err != nil {
		return decision, nil, err
	}

	count, err := e.countUnread(ctx, ev.RecipientID)
	if err != nil {
		return decision, nil, err
	}
	return decision, &models.ThreadUpdate{
		RecipientID: ev.RecipientID,
		UnreadCount: count,
		Thread:      next,
		Deleted:     decision == DecisionDelete,
	}, nil
}

// compose resolves the thread's actors to names and renders its message.
// Lookup failures fall back to raw ids rather than failing the event.
func (e *Engine) compose(ctx context.Context, t *models.NotificationThread) string {
	names := []string(t.Actors)
	if e.users == nil {
		return Compose(t.Kind, names)
	}

	var resolved map[string]string
	err := e.store(ctx, func(ctx context.Context) error {
		var err error
		resolved, err = e.users.DisplayNames(ctx, t.Actors)
		return err
	})
	if err != nil {
		e.logger.Warn("resolving actor names failed, using ids", "error", err)
		return Compose(t.Kind, names)
	}

	names = make([]string, len(t.Actors))
	for i, id := range t.Actors {
		if name, ok := resolved[id]; ok {
			names[i] = name
		} else {
			names[i] = id
		}
	}
	return Compose(t.Kind, names)
}

// Notify records ev on behalf of an event source whose own write already
// committed. Failures are logged and swallowed so they never fail the
// triggering action; the caller's cancellation does not abort the write.
func (e *Engine) Notify(ctx context.Context, ev models.Event) {
	if _, err := e.RecordEvent(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Warn("recording notification failed",
			"kind", ev.Kind, "recipient", ev.RecipientID, "actor", ev.ActorID, "error", err)
	}
}

// ListNotifications returns one page of the recipient's threads, most recently
// updated first, with a freshly counted unread total.
func (e *Engine) ListNotifications(ctx context.Context, recipientID string, page, limit int) (*Snapshot, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	var (
		threads []models.NotificationThread
		total   int64
	)
	err := e.store(ctx, func(ctx context.Context) error {
		var err error
		threads, total, err = e.repo.ListByRecipient(ctx, recipientID, (page-1)*limit, limit)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	count, err := e.countUnread(ctx, recipientID)
	if err != nil {
		return nil, storeError(err)
	}
	if threads == nil {
		threads = []models.NotificationThread{}
	}
	return &Snapshot{UnreadCount: count, Threads: threads, Total: total, Page: page, Limit: limit}, nil
}

// MarkRead marks a thread read for its owner and returns it with the
// recounted unread total. Marking an already read thread changes nothing but
// still reports the current state.
func (e *Engine) MarkRead(ctx context.Context, threadID, callerID string) (*models.ThreadUpdate, error) {
	for attempt := 0; ; attempt++ {
		update, changed, err := e.markRead(ctx, threadID, callerID)
		if errors.Is(err, repositories.ErrConflict) {
			if attempt >= e.maxRetries {
				return nil, fmt.Errorf("%w: thread %s after %d attempts", ErrConflict, threadID, attempt+1)
			}
			e.metrics.RecordConflictRetry()
			continue
		}
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
				return nil, err
			}
			return nil, storeError(err)
		}
		if changed {
			e.metrics.RecordRead("single")
			e.publish(update)
		}
		return update, nil
	}
}

func (e *Engine) markRead(ctx context.Context, threadID, callerID string) (*models.ThreadUpdate, bool, error) {
	var thread *models.NotificationThread
	err := e.store(ctx, func(ctx context.Context) error {
		var err error
		thread, err = e.repo.FindByID(ctx, threadID)
		return err
	})
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	if err != nil {
		return nil, false, err
	}
	if thread.RecipientID != callerID {
		return nil, false, ErrForbidden
	}

	changed := false
	if !thread.Read {
		next := thread.Clone()
		next.Read = true
		next.UpdatedAt = e.now()
		if err := e.store(ctx, func(ctx context.Context) error { return e.repo.Update(ctx, next, thread.Version) }); err != nil {
			return nil, false, err
		}
		thread, changed = next, true
	}

	count, err := e.countUnread(ctx, callerID)
	if err != nil {
		return nil, false, err
	}
	return &models.ThreadUpdate{RecipientID: callerID, UnreadCount: count, Thread: thread}, changed, nil
}

// MarkAllRead marks every thread of the caller read and returns the recount.
// Live sessions receive an update carrying the recount and no thread.
func (e *Engine) MarkAllRead(ctx context.Context, callerID string) (int64, error) {
	if err := e.store(ctx, func(ctx context.Context) error { return e.repo.MarkAllAsRead(ctx, callerID) }); err != nil {
		return 0, storeError(err)
	}
	e.metrics.RecordRead("all")
	count, err := e.countUnread(ctx, callerID)
	if err != nil {
		return 0, storeError(err)
	}
	e.publish(&models.ThreadUpdate{RecipientID: callerID, UnreadCount: count})
	return count, nil
}

// UnreadCount counts the recipient's unread threads in the store.
func (e *Engine) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	count, err := e.countUnread(ctx, recipientID)
	if err != nil {
		return 0, storeError(err)
	}
	return count, nil
}

// Subscribe streams updates for recipientID until ctx is done. Payloads for
// any other recipient are discarded here even though the topic is already
// per recipient.
func (e *Engine) Subscribe(ctx context.Context, recipientID string) <-chan models.ThreadUpdate {
	raw := e.bus.Subscribe(ctx, Topic(recipientID))
	out := make(chan models.ThreadUpdate)
	go func() {
		defer close(out)
		for update := range raw {
			if update.RecipientID != recipientID {
				continue
			}
			if update.Thread != nil && update.Thread.RecipientID != recipientID {
				continue
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (e *Engine) publish(update *models.ThreadUpdate) {
	payload := models.ThreadUpdate{
		RecipientID: update.RecipientID,
		UnreadCount: update.UnreadCount,
		Deleted:     update.Deleted,
	}
	if update.Thread != nil {
		payload.Thread = update.Thread.Clone()
	}
	n := e.bus.Publish(Topic(payload.RecipientID), payload)
	e.metrics.RecordPublished(n)
}

// kindLabel keeps client-supplied kinds out of metric label values.
func kindLabel(kind models.NotificationKind) string {
	if !kind.Valid() {
		return "unknown"
	}
	return string(kind)
}

func (e *Engine) findByKey(ctx context.Context, key models.ThreadKey) (*models.NotificationThread, error) {
	var thread *models.NotificationThread
	err := e.store(ctx, func(ctx context.Context) error {
		var err error
		thread, err = e.repo.FindByKey(ctx, key)
		return err
	})
	return thread, err
}

func (e *Engine) countUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := e.store(ctx, func(ctx context.Context) error {
		var err error
		count, err = e.repo.CountUnread(ctx, recipientID)
		return err
	})
	return count, err
}

// store runs one store call under the configured timeout.
func (e *Engine) store(ctx context.Context, call func(ctx context.Context) error) error {
	if e.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.storeTimeout)
		defer cancel()
	}
	return call(ctx)
}

// storeError classifies an unexpected store failure as retryable.
func storeError(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
