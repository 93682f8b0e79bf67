package dependency

import (
	"testing"

	"github.com/cuemby/flowexec/internal/tasks"
	"github.com/stretchr/testify/assert"
)

func statusPtr(s tasks.Status) *tasks.Status { return &s }

func TestResolve_NoParents(t *testing.T) {
	assert.Equal(t, Done, Resolve(nil))
}

func TestResolve_MissingParent(t *testing.T) {
	got := Resolve([]tasks.ParentStatus{{ParentID: "p1", Status: nil}})
	assert.Equal(t, Error, got)
}

func TestResolve_ParentError(t *testing.T) {
	got := Resolve([]tasks.ParentStatus{{ParentID: "p1", Status: statusPtr(tasks.StatusError)}})
	assert.Equal(t, Error, got)
}

func TestResolve_AllDone(t *testing.T) {
	got := Resolve([]tasks.ParentStatus{
		{ParentID: "p1", Status: statusPtr(tasks.StatusDone)},
		{ParentID: "p2", Status: statusPtr(tasks.StatusDone)},
	})
	assert.Equal(t, Done, got)
}

func TestResolve_Pending(t *testing.T) {
	got := Resolve([]tasks.ParentStatus{
		{ParentID: "p1", Status: statusPtr(tasks.StatusDone)},
		{ParentID: "p2", Status: statusPtr(tasks.StatusWaiting)},
	})
	assert.Equal(t, Pending, got)
}

func TestResolve_DuplicatesIgnored(t *testing.T) {
	// The same parent id reported twice must not change the outcome
	// versus reporting it once.
	done := statusPtr(tasks.StatusDone)
	got := Resolve([]tasks.ParentStatus{
		{ParentID: "p1", Status: done},
		{ParentID: "p1", Status: done},
	})
	assert.Equal(t, Done, got)
}

func TestResolve_ErrorTakesPrecedenceOverPending(t *testing.T) {
	got := Resolve([]tasks.ParentStatus{
		{ParentID: "p1", Status: statusPtr(tasks.StatusWaiting)},
		{ParentID: "p2", Status: statusPtr(tasks.StatusError)},
	})
	assert.Equal(t, Error, got)
}
