package models

import (
	"time"

	"github.com/google/uuid"
)

// Session identifies the caller of an operation. It is passed explicitly to
// every use case method.
type Session struct {
	UserID    uuid.UUID
	Email     string
	Role      string
	ExpiresAt time.Time
}

func (s Session) Valid() bool {
	return s.UserID != uuid.Nil
}
