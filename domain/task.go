package domain

import "fmt"

// Task is a single to-do record.
type Task struct {
	// ID is assigned by the store when the task is first added. It is not part
	// of the task's value and is ignored by Equal.
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     Date   `json:"dueDate"`
	Category    string `json:"category"`
}

// NewTask builds a task from form input. The due date must be YYYY-MM-DD.
func NewTask(title, description, dueDate, category string) (Task, error) {
	d, err := ParseDate(dueDate)
	if err != nil {
		return Task{}, err
	}
	return Task{
		Title:       title,
		Description: description,
		DueDate:     d,
		Category:    category,
	}, nil
}

// Equal reports whether t and other hold the same title, description, due
// date and category.
func (t Task) Equal(other Task) bool {
	return t.Title == other.Title &&
		t.Description == other.Description &&
		t.DueDate == other.DueDate &&
		t.Category == other.Category
}

// Validate checks the only field constraint a task has: a due date.
func (t Task) Validate() error {
	if t.DueDate.IsZero() {
		return fmt.Errorf("%w: due date is required", ErrInvalidDueDate)
	}
	return nil
}
