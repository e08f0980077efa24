package domain

import "sort"

// MaxTasks is the hard cap on tasks owned by one identity.
const MaxTasks = 7

// TaskColors is the fixed palette a task color must come from.
var TaskColors = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#FFD166",
	"#2EC4B6",
	"#F79824",
	"#9B5DE5",
	"#00BBF9",
}

// Task represents a single tracked task.
type Task struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Order int    `json:"order"`
}

// ValidColor reports whether c is one of the palette values.
func ValidColor(c string) bool {
	for _, p := range TaskColors {
		if c == p {
			return true
		}
	}
	return false
}

// TaskUpdate carries a partial task mutation. Nil fields are left unchanged.
type TaskUpdate struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
	Order *int    `json:"order,omitempty"`
}

// Empty reports whether the update would change nothing.
func (u TaskUpdate) Empty() bool {
	return u.Name == nil && u.Color == nil && u.Order == nil
}

// SortTasks orders tasks by their Order field, preserving the relative
// position of equal orders.
func SortTasks(ts []Task) {
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Order < ts[j].Order })
}
