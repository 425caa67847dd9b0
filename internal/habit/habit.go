// Package habit provides the habit list and daily completion data for a
// user. Habit names are the only sensitive field: they are encrypted with
// the user's derived key before they reach a store, dates and colors stay
// plaintext so stores can sort and filter on them.
package habit

import (
	"fmt"
	"regexp"
	"time"

	"github.com/habitkeep/habitkeep/internal/errorz"
)

// Habit is a single tracked habit as the client sees it.
type Habit struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Data is a user's full habit state: the habit list and, per habit id, a
// map of day (2006-01-02) to completion.
type Data struct {
	Habits  []Habit                    `json:"habits"`
	Entries map[string]map[string]bool `json:"habitData"`
}

const (
	maxHabits   = 200
	maxIDLen    = 64
	maxNameLen  = 120
	dayFormat   = "2006-01-02"
	colorFormat = `^#[0-9a-fA-F]{6}$`
)

var colorRe = regexp.MustCompile(colorFormat)

// Validate checks the shape of the data. It returns errorz.InvalidInput
// describing every problem found.
func (d Data) Validate() error {
	var invalid errorz.InvalidInput

	if len(d.Habits) > maxHabits {
		invalid = append(invalid, errorz.Keyed{
			Key: "habits",
			Err: fmt.Errorf("more than %d habits", maxHabits),
		})
	}

	seen := make(map[string]bool, len(d.Habits))
	for i, h := range d.Habits {
		key := fmt.Sprintf("habits[%d]", i)

		if h.ID == "" || len(h.ID) > maxIDLen {
			invalid = append(invalid, errorz.Keyed{
				Key: key + ".id",
				Err: fmt.Errorf("must be 1-%d characters", maxIDLen),
			})
		}

		if seen[h.ID] {
			invalid = append(invalid, errorz.Keyed{
				Key: key + ".id",
				Err: fmt.Errorf("duplicate habit id %q", h.ID),
			})
		}
		seen[h.ID] = true

		if h.Name == "" || len(h.Name) > maxNameLen {
			invalid = append(invalid, errorz.Keyed{
				Key: key + ".name",
				Err: fmt.Errorf("must be 1-%d bytes", maxNameLen),
			})
		}

		if h.Color != "" && !colorRe.MatchString(h.Color) {
			invalid = append(invalid, errorz.Keyed{
				Key: key + ".color",
				Err: fmt.Errorf("must match %s", colorFormat),
			})
		}
	}

	for habitID, days := range d.Entries {
		if !seen[habitID] {
			invalid = append(invalid, errorz.Keyed{
				Key: "habitData." + habitID,
				Err: fmt.Errorf("unknown habit id"),
			})
			continue
		}

		for day := range days {
			if _, err := time.Parse(dayFormat, day); err != nil {
				invalid = append(invalid, errorz.Keyed{
					Key: "habitData." + habitID + "." + day,
					Err: fmt.Errorf("not a valid day (want %s)", dayFormat),
				})
			}
		}
	}

	if len(invalid) > 0 {
		return invalid
	}

	return nil
}
