package domain

// ProgressLevel describes how much of a task's daily target was completed.
type ProgressLevel int

const (
	Nothing ProgressLevel = iota
	Minimal
	Target
	BeyondTarget
)

// Valid reports whether l is one of the four defined levels.
func (l ProgressLevel) Valid() bool {
	return l >= Nothing && l <= BeyondTarget
}

func (l ProgressLevel) String() string {
	switch l {
	case Nothing:
		return "nothing"
	case Minimal:
		return "minimal"
	case Target:
		return "target"
	case BeyondTarget:
		return "beyond-target"
	default:
		return "unknown"
	}
}

// DailyProgress holds the recorded levels for every task on one calendar day.
// A task id absent from TaskProgress means Nothing for that day.
type DailyProgress struct {
	Date         string                   `json:"date"`
	TaskProgress map[string]ProgressLevel `json:"taskProgress"`
}

// Clone returns a deep copy so callers can hold a row without aliasing the
// store's map.
func (p DailyProgress) Clone() DailyProgress {
	out := DailyProgress{Date: p.Date, TaskProgress: make(map[string]ProgressLevel, len(p.TaskProgress))}
	for id, lvl := range p.TaskProgress {
		out.TaskProgress[id] = lvl
	}
	return out
}
