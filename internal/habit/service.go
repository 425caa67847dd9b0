package habit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/krypto"
)

// Service applies the encryption boundary between clients and the store.
type Service struct {
	store     Store
	encryptor *krypto.UserEncryptor
	logger    *slog.Logger
}

func NewService(store Store, encryptor *krypto.UserEncryptor, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		encryptor: encryptor,
		logger:    logger,
	}
}

// Load returns the user's habit data with names decrypted.
//
// A record that fails to decrypt is skipped and logged, the rest of the
// data is still returned. One corrupted record must not deny access to
// the user's entire habit list.
func (s *Service) Load(ctx context.Context, userID uuid.UUID) (Data, error) {
	stored, err := s.store.GetData(ctx, userID)
	if err != nil {
		return Data{}, err
	}

	return s.decryptData(userID, stored), nil
}

// Save validates, encrypts and stores the user's full habit state.
// The replacement is all-or-nothing, concurrent saves by the same user
// are last-write-wins.
func (s *Service) Save(ctx context.Context, userID uuid.UUID, data Data) error {
	if err := data.Validate(); err != nil {
		return err
	}

	stored, err := s.encryptData(userID, data)
	if err != nil {
		return err
	}

	return s.store.ReplaceData(ctx, userID, stored)
}

// Import validates and stores previously exported data, replacing the
// user's current state.
func (s *Service) Import(ctx context.Context, userID uuid.UUID, data Data) error {
	return s.Save(ctx, userID, data)
}

// ExportJSON writes the user's data as indented JSON.
func (s *Service) ExportJSON(ctx context.Context, userID uuid.UUID, w io.Writer) error {
	data, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ExportCSV writes one row per completed day: habit name, day, completed.
// Rows are ordered by habit position, then day.
func (s *Service) ExportCSV(ctx context.Context, userID uuid.UUID, w io.Writer) error {
	data, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"habit", "date", "completed"}); err != nil {
		return err
	}

	for _, h := range data.Habits {
		days := make([]string, 0, len(data.Entries[h.ID]))
		for day, done := range data.Entries[h.ID] {
			if done {
				days = append(days, day)
			}
		}
		sort.Strings(days)

		for _, day := range days {
			if err := cw.Write([]string{h.Name, day, "1"}); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func (s *Service) encryptData(userID uuid.UUID, data Data) (StoredData, error) {
	stored := StoredData{
		Habits:  make([]StoredHabit, 0, len(data.Habits)),
		Entries: data.Entries,
	}

	for i, h := range data.Habits {
		envelope, err := s.encryptor.Encrypt(userID.String(), []byte(h.Name))
		if err != nil {
			return StoredData{}, fmt.Errorf("failed to encrypt habit name: %w", err)
		}

		stored.Habits = append(stored.Habits, StoredHabit{
			ID:           h.ID,
			NameEnvelope: envelope,
			Color:        h.Color,
			Position:     i,
		})
	}

	return stored, nil
}

func (s *Service) decryptData(userID uuid.UUID, stored StoredData) Data {
	data := Data{
		Habits:  make([]Habit, 0, len(stored.Habits)),
		Entries: make(map[string]map[string]bool, len(stored.Entries)),
	}

	for _, h := range stored.Habits {
		name, err := s.encryptor.Decrypt(userID.String(), h.NameEnvelope)
		if err != nil {
			// Skip the record, keep serving the rest.
			s.logger.Error("failed to decrypt habit name",
				"userID", userID,
				"habitID", h.ID,
				"error", err,
			)
			continue
		}

		data.Habits = append(data.Habits, Habit{
			ID:    h.ID,
			Name:  string(name),
			Color: h.Color,
		})

		if days, ok := stored.Entries[h.ID]; ok {
			data.Entries[h.ID] = days
		}
	}

	return data
}
