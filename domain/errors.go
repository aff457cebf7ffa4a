package domain

import "fmt"

func errDayIndexRange(day int) error {
	return fmt.Errorf("day index %d out of range 0..6", day)
}

func errDuplicateTaskID(id string, day int) error {
	return fmt.Errorf("duplicate task id %q on day %d", id, day)
}
