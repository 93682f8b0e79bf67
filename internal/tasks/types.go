package tasks

import "time"

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusResolving  Status = "RESOLVING"
	StatusWaiting    Status = "WAITING"
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusError      Status = "ERROR"
)

// DependencyKind tags a Dependency edge.
type DependencyKind string

const (
	// KindIO marks an edge whose child consumes the parent's output; the
	// resolver only ever looks at these.
	KindIO DependencyKind = "IO"
	// KindSubprocess marks an edge from a spawning parent to a child it
	// created during evaluation. Not consulted by DependencyResolver.
	KindSubprocess DependencyKind = "SUBPROCESS"
)

// SchedulingClass values are shipped to the executor in the constants.json
// settings file.
type SchedulingClass string

const (
	SchedulingClassInteractive SchedulingClass = "interactive"
	SchedulingClassBatch       SchedulingClass = "batch"
)

// Process describes how a Task should be run.
type Process struct {
	Name            string
	Slug            string
	RunLanguage     string // empty means "no run section"
	RunProgram      string // template/script text handed to the execution engine
	SchedulingClass SchedulingClass
}

// HasRun reports whether the process carries a run section at all.
func (p Process) HasRun() bool {
	return p.RunLanguage != ""
}

// Task is a single unit of computation ("data object").
type Task struct {
	ID            string
	Status        Status
	DisplayName   string
	NameTemplate  string // used to re-render DisplayName on save
	Process       Process
	ProcessErrors []string
	ProcessRC     *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppendError records a process error message, mirroring Data.process_error.append(...).
func (t *Task) AppendError(msg string) {
	t.ProcessErrors = append(t.ProcessErrors, msg)
}

// SetRC sets the process return code.
func (t *Task) SetRC(rc int) {
	t.ProcessRC = &rc
}

// Dependency is a directed parent -> child edge.
type Dependency struct {
	ParentID string
	ChildID  string
	Kind     DependencyKind
}

// ParentStatus pairs a parent id with its last-known status. A nil Status
// pointer (as opposed to an empty Status) represents a deleted parent row
// — the resolver must distinguish "parent has no status value" from
// "parent genuinely has an empty status", so the pointer is load-bearing.
type ParentStatus struct {
	ParentID string
	Status   *Status
}
