package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NotificationKind is the closed set of social events a thread can coalesce.
type NotificationKind string

const (
	KindNewPost      NotificationKind = "new_post"
	KindNewComment   NotificationKind = "new_comment"
	KindReplyComment NotificationKind = "reply_comment"
	KindLikeComment  NotificationKind = "like_comment"
	KindLikeReply    NotificationKind = "like_reply"
	KindLike         NotificationKind = "like"
	KindSave         NotificationKind = "save"
	KindFollow       NotificationKind = "follow"
)

// AllKinds lists every supported kind in display order.
var AllKinds = []NotificationKind{
	KindNewPost, KindNewComment, KindReplyComment, KindLikeComment,
	KindLikeReply, KindLike, KindSave, KindFollow,
}

// Valid reports whether k is one of the known kinds.
func (k NotificationKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Reversible reports whether an actor's contribution of this kind can be
// withdrawn (unfollow, unlike, unsave).
func (k NotificationKind) Reversible() bool {
	switch k {
	case KindFollow, KindLike, KindLikeComment, KindLikeReply, KindSave:
		return true
	}
	return false
}

// NeedsComment reports whether events of this kind target a comment.
func (k NotificationKind) NeedsComment() bool {
	switch k {
	case KindReplyComment, KindLikeComment, KindLikeReply:
		return true
	}
	return false
}

// EventAction says how an event changes a thread's actor set.
type EventAction string

const (
	ActionAdd    EventAction = "add"
	ActionRemove EventAction = "remove"
	// ActionToggle adds the actor when absent and removes it when present.
	ActionToggle EventAction = "toggle"
)

// Subject identifies the content a thread is about. Follow threads have none.
type Subject struct {
	PostID    string `json:"post_id,omitempty" bson:"post_id,omitempty"`
	CommentID string `json:"comment_id,omitempty" bson:"comment_id,omitempty"`
}

// ThreadKey is the coalescing key of a notification thread.
type ThreadKey struct {
	RecipientID string
	Kind        NotificationKind
	Subject     Subject
}

// String renders the canonical form stored in the unique thread_key column.
// Each part is length-prefixed, so ids may contain any byte.
func (k ThreadKey) String() string {
	var b strings.Builder
	for _, part := range []string{k.RecipientID, string(k.Kind), k.Subject.PostID, k.Subject.CommentID} {
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// ActorList is the ordered actor ids of a thread, stored as a JSON array in SQL stores.
type ActorList []string

// Value implements driver.Valuer
func (a ActorList) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (a *ActorList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into ActorList", src)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return err
	}
	*a = ids
	return nil
}

// NotificationThread is a coalesced group of same-key events shown as one row.
type NotificationThread struct {
	ID          string           `json:"id" bson:"_id" gorm:"primaryKey;size:64"`
	ThreadKey   string           `json:"-" bson:"thread_key" gorm:"size:512;uniqueIndex"`
	RecipientID string           `json:"recipient_id" bson:"recipient_id" gorm:"size:64;index:idx_recipient_read"`
	Kind        NotificationKind `json:"kind" bson:"kind" gorm:"size:30"`
	Subject     Subject          `json:"subject" bson:"subject" gorm:"embedded;embeddedPrefix:subject_"`
	Actors      ActorList        `json:"actors" bson:"actors" gorm:"type:text"` // most recent first
	Message     string           `json:"message" bson:"message"`
	Read        bool             `json:"is_read" bson:"is_read" gorm:"column:is_read;default:false;index:idx_recipient_read"`
	Version     int64            `json:"-" bson:"version"`
	CreatedAt   time.Time        `json:"created_at" bson:"created_at" gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time        `json:"updated_at" bson:"updated_at" gorm:"autoUpdateTime:false;index"`
}

// TableName keeps the gorm table aligned with the Mongo collection name
func (NotificationThread) TableName() string {
	return "notification_threads"
}

// Key returns the coalescing key of the thread.
func (t *NotificationThread) Key() ThreadKey {
	return ThreadKey{RecipientID: t.RecipientID, Kind: t.Kind, Subject: t.Subject}
}

// HasActor reports whether actorID already contributed to the thread.
func (t *NotificationThread) HasActor(actorID string) bool {
	for _, a := range t.Actors {
		if a == actorID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (t *NotificationThread) Clone() *NotificationThread {
	if t == nil {
		return nil
	}
	c := *t
	c.Actors = append(ActorList(nil), t.Actors...)
	return &c
}

// Event is a social action reported by an event source after its own write committed.
type Event struct {
	RecipientID string           `json:"recipient_id" validate:"required,max=64"`
	ActorID     string           `json:"actor_id" validate:"required,max=64"`
	Kind        NotificationKind `json:"kind" validate:"required,notification_kind"`
	PostID      string           `json:"post_id,omitempty" validate:"max=64"`
	CommentID   string           `json:"comment_id,omitempty" validate:"max=64"`
	Action      EventAction      `json:"action,omitempty" validate:"omitempty,oneof=add remove toggle"`
}

// Key returns the thread key the event coalesces into.
func (e Event) Key() ThreadKey {
	return ThreadKey{
		RecipientID: e.RecipientID,
		Kind:        e.Kind,
		Subject:     Subject{PostID: e.PostID, CommentID: e.CommentID},
	}
}

// ThreadUpdate is what a mutation produces and what live subscribers receive.
// A bulk read carries only the recount and no thread.
type ThreadUpdate struct {
	RecipientID string              `json:"recipientId,omitempty"`
	UnreadCount int64               `json:"unreadCount"`
	Thread      *NotificationThread `json:"thread"`
	Deleted     bool                `json:"deleted,omitempty"`
}

// RecordEventRequest is the body event sources post; the actor is the caller.
type RecordEventRequest struct {
	RecipientID string      `json:"recipient_id" validate:"required,max=64"`
	Kind        string      `json:"kind" validate:"required,max=30"`
	PostID      string      `json:"post_id,omitempty" validate:"max=64"`
	CommentID   string      `json:"comment_id,omitempty" validate:"max=64"`
	Action      EventAction `json:"action,omitempty" validate:"omitempty,oneof=add remove toggle"`
}
