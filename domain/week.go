package domain

import "time"

// Days maps a weekday index (0 = Monday .. 6 = Sunday) to that day's ordered
// task list. An absent index and an empty list both mean "no tasks".
type Days map[int][]Task

// Week is one persisted planner document, keyed by the ISO date of the
// week's Monday.
type Week struct {
	WeekKey   string    `json:"weekKey"`
	Days      Days      `json:"days"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const weekKeyLayout = "2006-01-02"

// ValidWeekKey reports whether key is a YYYY-MM-DD date.
func ValidWeekKey(key string) bool {
	if len(key) != len(weekKeyLayout) {
		return false
	}
	_, err := time.Parse(weekKeyLayout, key)
	return err == nil
}

// ValidDayIndex reports whether day addresses a weekday within a week.
func ValidDayIndex(day int) bool {
	return day >= 0 && day <= 6
}

// MondayOf returns the week key for the week containing t.
func MondayOf(t time.Time) string {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7 // Sunday
	}
	return t.AddDate(0, 0, 1-wd).Format(weekKeyLayout)
}

// Upsert inserts the task into the day list, or replaces the entry with the
// same id in place, preserving list order.
func (d Days) Upsert(day int, task Task) {
	list := d[day]
	for i := range list {
		if list[i].ID == task.ID {
			list[i] = task
			return
		}
	}
	d[day] = append(list, task)
}

// Update replaces the text and status of the task with the given id. It
// returns false when no such task exists in the day list.
func (d Days) Update(day int, taskID, text string, status Status) bool {
	list := d[day]
	for i := range list {
		if list[i].ID == taskID {
			list[i].Text = text
			list[i].Status = status
			return true
		}
	}
	return false
}

// Remove deletes the task with the given id from the day list. Removing an
// absent id is a no-op and returns false.
func (d Days) Remove(day int, taskID string) bool {
	list := d[day]
	for i := range list {
		if list[i].ID == taskID {
			d[day] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns the task with the given id from the day list.
func (d Days) Find(day int, taskID string) (Task, bool) {
	for _, t := range d[day] {
		if t.ID == taskID {
			return t, true
		}
	}
	return Task{}, false
}

// Normalize drops empty day lists so that absent and empty days compare
// equal after a round trip.
func (d Days) Normalize() {
	for day, list := range d {
		if len(list) == 0 {
			delete(d, day)
		}
	}
}

// Clone returns a deep copy of the days mapping.
func (d Days) Clone() Days {
	if d == nil {
		return Days{}
	}
	out := make(Days, len(d))
	for day, list := range d {
		cp := make([]Task, len(list))
		copy(cp, list)
		out[day] = cp
	}
	return out
}

// Validate checks every day index and task in the mapping.
func (d Days) Validate() error {
	for day, list := range d {
		if !ValidDayIndex(day) {
			return errDayIndexRange(day)
		}
		seen := make(map[string]struct{}, len(list))
		for _, t := range list {
			if err := ValidateTask(t); err != nil {
				return err
			}
			if _, dup := seen[t.ID]; dup {
				return errDuplicateTaskID(t.ID, day)
			}
			seen[t.ID] = struct{}{}
		}
	}
	return nil
}
