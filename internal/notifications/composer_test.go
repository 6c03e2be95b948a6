package notifications

import (
	"testing"

	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCompose(t *testing.T) {
	tests := []struct {
		name  string
		kind  models.NotificationKind
		names []string
		want  string
	}{
		{"single actor", models.KindNewComment, []string{"Ana"}, "Ana commented on your post."},
		{"two actors keep literal others", models.KindNewComment, []string{"Cy", "Ana"}, "Cy and 1 others commented on your post."},
		{"many actors", models.KindLike, []string{"Dee", "Cy", "Ana"}, "Dee and 2 others liked your post."},
		{"follow", models.KindFollow, []string{"Ana"}, "Ana followed you."},
		{"reply", models.KindReplyComment, []string{"Bo"}, "Bo replied to your comment."},
		{"no actors", models.KindSave, nil, ""},
		{"unknown kind", models.NotificationKind("poke"), []string{"Ana"}, "Ana interacted with you."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compose(tt.kind, tt.names))
		})
	}
}

func TestVerbPhraseCoversEveryKind(t *testing.T) {
	for _, kind := range models.AllKinds {
		assert.NotEqual(t, "interacted with you", VerbPhrase(kind), "kind %s has no phrase", kind)
	}
}
