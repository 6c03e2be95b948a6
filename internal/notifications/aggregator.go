package notifications

import (
	"time"

	"github.com/anonto42/nano-midea/notifier/internal/models"
)

// Decision is what an event does to the thread under its key.
type Decision int

const (
	DecisionNoop Decision = iota
	DecisionCreate
	DecisionUpdate
	DecisionDelete
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionUpdate:
		return "update"
	case DecisionDelete:
		return "delete"
	default:
		return "noop"
	}
}

// Aggregate decides how ev changes current, the thread stored under ev's key
// (nil when there is none). current is never modified. For create and update
// the returned thread is a new copy with actors, read flag and timestamps set
// and Message left stale for the caller to recompose; for delete it is a copy
// of current; for noop it is nil.
func Aggregate(current *models.NotificationThread, ev models.Event, now time.Time) (Decision, *models.NotificationThread) {
	present := current != nil && current.HasActor(ev.ActorID)

	remove := false
	switch ev.Action {
	case models.ActionRemove:
		remove = true
	case models.ActionToggle:
		remove = present
	}

	if remove {
		if !present {
			return DecisionNoop, nil
		}
		next := current.Clone()
		next.Actors = withoutActor(next.Actors, ev.ActorID)
		if len(next.Actors) == 0 {
			return DecisionDelete, next
		}
		// withdrawing a contribution leaves the read flag alone
		next.UpdatedAt = now
		return DecisionUpdate, next
	}

	if current == nil {
		return DecisionCreate, &models.NotificationThread{
			RecipientID: ev.RecipientID,
			Kind:        ev.Kind,
			Subject:     models.Subject{PostID: ev.PostID, CommentID: ev.CommentID},
			Actors:      models.ActorList{ev.ActorID},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	if present {
		return DecisionNoop, nil
	}

	next := current.Clone()
	next.Actors = append(models.ActorList{ev.ActorID}, next.Actors...)
	next.Read = false
	next.UpdatedAt = now
	return DecisionUpdate, next
}

func withoutActor(actors models.ActorList, actorID string) models.ActorList {
	out := make(models.ActorList, 0, len(actors))
	for _, a := range actors {
		if a != actorID {
			out = append(out, a)
		}
	}
	return out
}
