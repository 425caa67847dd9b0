package habit

import (
	"context"

	"github.com/google/uuid"
)

// StoredHabit is a habit as it is persisted: the name is replaced by its
// encryption envelope, position preserves the client's ordering.
type StoredHabit struct {
	ID           string
	NameEnvelope string
	Color        string
	Position     int
}

// StoredData is a user's full persisted habit state.
type StoredData struct {
	Habits  []StoredHabit
	Entries map[string]map[string]bool
}

// Store persists habit data per user.
type Store interface {
	// GetData returns the stored data for the user. A user without any
	// stored data gets an empty StoredData, not an error.
	GetData(ctx context.Context, userID uuid.UUID) (StoredData, error)
	// ReplaceData replaces the user's full habit state in one transaction.
	// Interrupted replacements must not leave partial state behind.
	ReplaceData(ctx context.Context, userID uuid.UUID, data StoredData) error
}
