package notifications

import (
	"fmt"

	"github.com/anonto42/nano-midea/notifier/internal/models"
)

var verbPhrases = map[models.NotificationKind]string{
	models.KindNewPost:      "published a new post",
	models.KindNewComment:   "commented on your post",
	models.KindReplyComment: "replied to your comment",
	models.KindLikeComment:  "liked your comment",
	models.KindLikeReply:    "liked your reply",
	models.KindLike:         "liked your post",
	models.KindSave:         "saved your post",
	models.KindFollow:       "followed you",
}

// VerbPhrase returns the fixed phrase used for kind.
func VerbPhrase(kind models.NotificationKind) string {
	if phrase, ok := verbPhrases[kind]; ok {
		return phrase
	}
	return "interacted with you"
}

// Compose renders the display message for a thread whose actors, most recent
// first, have already been resolved to names.
//
//	Compose(KindNewComment, []string{"Ana"})        // "Ana commented on your post."
//	Compose(KindNewComment, []string{"Cy", "Ana"})  // "Cy and 1 others commented on your post."
func Compose(kind models.NotificationKind, names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s %s.", names[0], VerbPhrase(kind))
	default:
		return fmt.Sprintf("%s and %d others %s.", names[0], len(names)-1, VerbPhrase(kind))
	}
}
