package uuid

import (
	google_uuid "github.com/google/uuid"
)

// MustUUID returns a new random UUID string
func MustUUID() string {
	return google_uuid.New().String()
}

// Short returns the first eight hex digits of a new random UUID.
// It is meant for names that only need to be unique among a
// handful of live objects.
func Short() string {
	return MustUUID()[:8]
}
