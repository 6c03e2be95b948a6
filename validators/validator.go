package validators

import (
	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/go-playground/validator/v10"
)

// CustomValidator adapts go-playground/validator to echo.Validator
type CustomValidator struct {
	validate *validator.Validate
}

// New returns a validator with the notifier's custom tags registered
func New() *validator.Validate {
	v := validator.New()
	// registration only fails on an empty tag or a nil func
	_ = v.RegisterValidation("notification_kind", func(fl validator.FieldLevel) bool {
		return models.NotificationKind(fl.Field().String()).Valid()
	})
	return v
}

// NewValidator creates the validator installed on the echo instance
func NewValidator() *CustomValidator {
	return &CustomValidator{validate: New()}
}

// Validate implements echo.Validator
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validate.Struct(i)
}
