package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is the slice of the account record the notifier needs to render names (PostgreSQL)
type User struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	DisplayName string    `json:"display_name" gorm:"size:100"`
	Email       string    `json:"email" gorm:"uniqueIndex"`
	FirebaseUID string    `json:"firebase_uid,omitempty" gorm:"index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
