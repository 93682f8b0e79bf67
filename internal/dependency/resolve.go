package dependency

import "github.com/cuemby/flowexec/internal/tasks"

// Result is the tri-valued outcome of resolving a task's IO-kind parents.
type Result int

const (
	// Pending means none of the other cases apply yet: at least one
	// parent is still RESOLVING/WAITING/PROCESSING and none has failed.
	Pending Result = iota
	Done
	Error
)

func (r Result) String() string {
	switch r {
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return "pending"
	}
}

// Resolve computes a task's dependency status from the multiset of its
// IO-kind parent statuses. A nil Status pointer in a ParentStatus means
// the parent record no longer exists.
//
// Duplicates in parents are ignored: entries are collapsed by ParentID,
// keeping the first status reported for each id, so the outcome does not
// depend on how many times a parent appears.
func Resolve(parents []tasks.ParentStatus) Result {
	if len(parents) == 0 {
		return Done
	}

	seen := make(map[string]*tasks.Status, len(parents))
	for _, p := range parents {
		if _, ok := seen[p.ParentID]; !ok {
			seen[p.ParentID] = p.Status
		}
	}

	allDone := true
	for _, status := range seen {
		if status == nil {
			return Error
		}
		if *status == tasks.StatusError {
			return Error
		}
		if *status != tasks.StatusDone {
			allDone = false
		}
	}
	if allDone {
		return Done
	}
	return Pending
}
