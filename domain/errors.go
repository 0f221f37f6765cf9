package domain

import "errors"

// ErrInvalidDueDate indicates that a due date is missing or is not a valid
// YYYY-MM-DD calendar date.
var ErrInvalidDueDate = errors.New("invalid due date")

// ErrTaskNotFound is returned when an operation addresses a task that is not in
// the list.
var ErrTaskNotFound = errors.New("task not found")
