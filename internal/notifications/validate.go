package notifications

import (
	"fmt"

	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/go-playground/validator/v10"
)

// ValidateEvent checks ev's shape and the subject rules of its kind. Failures
// wrap ErrValidation. An empty Action must already be normalized to add.
func ValidateEvent(v *validator.Validate, ev models.Event) error {
	if err := v.Struct(ev); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch {
	case ev.Kind == models.KindFollow && (ev.PostID != "" || ev.CommentID != ""):
		return fmt.Errorf("%w: follow events carry no subject", ErrValidation)
	case ev.Kind != models.KindFollow && ev.PostID == "":
		return fmt.Errorf("%w: %s events need a post_id", ErrValidation, ev.Kind)
	case ev.Kind.NeedsComment() && ev.CommentID == "":
		return fmt.Errorf("%w: %s events need a comment_id", ErrValidation, ev.Kind)
	case ev.Action != models.ActionAdd && !ev.Kind.Reversible():
		return fmt.Errorf("%w: %s events cannot be withdrawn", ErrValidation, ev.Kind)
	}
	return nil
}
