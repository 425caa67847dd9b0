package sqlite

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/db"
	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/habit"
)

func selectHabitData(tx *sql.Tx, userID uuid.UUID) (habit.StoredData, error) {
	data := habit.StoredData{
		Habits:  make([]habit.StoredHabit, 0),
		Entries: make(map[string]map[string]bool),
	}

	var q db.Query
	q.Unsafe(`SELECT habit_id, name_envelope, color, position FROM habits WHERE user_id = `)
	q.Param(userID)
	q.Unsafe(` ORDER BY position ASC`)

	s, params := q.Get()
	rows, err := tx.Query(s, params...)
	if err != nil {
		return habit.StoredData{}, errorz.MapDBErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var h habit.StoredHabit
		if err := rows.Scan(&h.ID, &h.NameEnvelope, &h.Color, &h.Position); err != nil {
			return habit.StoredData{}, errorz.MapDBErr(err)
		}
		data.Habits = append(data.Habits, h)
	}
	if err := rows.Err(); err != nil {
		return habit.StoredData{}, errorz.MapDBErr(err)
	}

	q = db.Query{}
	q.Unsafe(`SELECT habit_id, day, completed FROM habit_entries WHERE user_id = `)
	q.Param(userID)

	s, params = q.Get()
	entryRows, err := tx.Query(s, params...)
	if err != nil {
		return habit.StoredData{}, errorz.MapDBErr(err)
	}
	defer entryRows.Close()

	for entryRows.Next() {
		var (
			habitID   string
			day       string
			completed bool
		)
		if err := entryRows.Scan(&habitID, &day, &completed); err != nil {
			return habit.StoredData{}, errorz.MapDBErr(err)
		}

		if data.Entries[habitID] == nil {
			data.Entries[habitID] = make(map[string]bool)
		}
		data.Entries[habitID][day] = completed
	}
	if err := entryRows.Err(); err != nil {
		return habit.StoredData{}, errorz.MapDBErr(err)
	}

	return data, nil
}

func replaceHabitData(tx *sql.Tx, userID uuid.UUID, data habit.StoredData) error {
	// habit_entries cascade on the habits delete.
	var q db.Query
	q.Unsafe(`DELETE FROM habits WHERE user_id = `)
	q.Param(userID)

	s, params := q.Get()
	if _, err := tx.Exec(s, params...); err != nil {
		return errorz.MapDBErr(err)
	}

	habitStmt, err := tx.Prepare(`INSERT INTO habits (user_id, habit_id, name_envelope, color, position) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errorz.MapDBErr(err)
	}
	defer habitStmt.Close()

	for _, h := range data.Habits {
		if _, err := habitStmt.Exec(userID, h.ID, h.NameEnvelope, h.Color, h.Position); err != nil {
			return errorz.MapDBErr(err)
		}
	}

	entryStmt, err := tx.Prepare(`INSERT INTO habit_entries (user_id, habit_id, day, completed) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errorz.MapDBErr(err)
	}
	defer entryStmt.Close()

	for habitID, days := range data.Entries {
		for day, completed := range days {
			if _, err := entryStmt.Exec(userID, habitID, day, completed); err != nil {
				return errorz.MapDBErr(err)
			}
		}
	}

	return nil
}
