package habit_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/habit"
)

func validData() habit.Data {
	return habit.Data{
		Habits: []habit.Habit{
			{ID: "habit-1", Name: "Morning run", Color: "#FF5733"},
			{ID: "habit-2", Name: "Read 10 pages"},
		},
		Entries: map[string]map[string]bool{
			"habit-1": {
				"2025-03-01": true,
				"2025-03-02": false,
			},
		},
	}
}

func Test_Data_Validate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		okCases := map[string]func(*habit.Data){
			"typical data":     func(d *habit.Data) {},
			"no habits":        func(d *habit.Data) { d.Habits = nil; d.Entries = nil },
			"no entries":       func(d *habit.Data) { d.Entries = nil },
			"no color":         func(d *habit.Data) { d.Habits[0].Color = "" },
			"lower case color": func(d *habit.Data) { d.Habits[0].Color = "#ff5733" },
			"max length name":  func(d *habit.Data) { d.Habits[0].Name = strings.Repeat("x", 120) },
			"max length id":    func(d *habit.Data) { d.Habits[0].ID = strings.Repeat("x", 64); delete(d.Entries, "habit-1") },
		}

		for name, modify := range okCases {
			t.Run(name, func(t *testing.T) {
				data := validData()
				modify(&data)

				if err := data.Validate(); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			})
		}
	})

	t.Run("fail", func(t *testing.T) {
		failCases := map[string]func(*habit.Data){
			"empty id":      func(d *habit.Data) { d.Habits[0].ID = "" },
			"long id":       func(d *habit.Data) { d.Habits[0].ID = strings.Repeat("x", 65) },
			"duplicate id":  func(d *habit.Data) { d.Habits[1].ID = d.Habits[0].ID },
			"empty name":    func(d *habit.Data) { d.Habits[0].Name = "" },
			"long name":     func(d *habit.Data) { d.Habits[0].Name = strings.Repeat("x", 121) },
			"bad color":     func(d *habit.Data) { d.Habits[0].Color = "red" },
			"short color":   func(d *habit.Data) { d.Habits[0].Color = "#FFF" },
			"unknown habit": func(d *habit.Data) { d.Entries["nope"] = map[string]bool{"2025-03-01": true} },
			"bad day":       func(d *habit.Data) { d.Entries["habit-1"]["03/01/2025"] = true },
			"too many habits": func(d *habit.Data) {
				d.Habits = nil
				d.Entries = nil
				for i := 0; i < 201; i++ {
					d.Habits = append(d.Habits, habit.Habit{
						ID:   fmt.Sprintf("habit-%d", i),
						Name: "h",
					})
				}
			},
		}

		for name, modify := range failCases {
			t.Run(name, func(t *testing.T) {
				data := validData()
				modify(&data)

				err := data.Validate()

				var invalid errorz.InvalidInput
				if !errors.As(err, &invalid) {
					t.Errorf("expected InvalidInput, got %v", err)
				}
			})
		}
	})
}
