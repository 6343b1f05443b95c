package domain

import "github.com/google/uuid"

// NewID generates a UUIDv7 string. Run ids sort by creation time.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
