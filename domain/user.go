package domain

import "github.com/google/uuid"

// User is a registered mailbox owner.
// PasswordHash is opaque: it is compared, never interpreted.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
}
