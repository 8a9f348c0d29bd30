package service

import (
	"strings"

	"github.com/google/uuid"
)

// NewEventID returns an opaque key for a new statusUpdates entry.
func NewEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
