package uuidx

import "github.com/google/uuid"

// New returns a fresh version 7 UUID. V7 IDs are time ordered, which keeps
// them index friendly when records end up in storage. Panics if the source
// of randomness fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a fresh version 7 UUID in string form.
func NewString() string {
	return New().String()
}
