package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	task := &Task{ID: "t1", Status: StatusResolving}
	require.NoError(t, s.Create(task))

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, StatusResolving, got.Status)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SaveRendersName(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	task := &Task{ID: "t1", Status: StatusResolving, NameTemplate: "task-%s"}
	require.NoError(t, s.Create(task))

	task.Status = StatusDone
	require.NoError(t, s.Save(task, true))

	got, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, "task-t1", got.DisplayName)
}

func TestMemoryStore_MutatingReturnedTaskDoesNotLeak(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.Create(&Task{ID: "t1", Status: StatusResolving}))

	got, err := s.Get("t1")
	require.NoError(t, err)
	got.Status = StatusError
	got.ProcessErrors = append(got.ProcessErrors, "mutated")

	again, err := s.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, StatusResolving, again.Status)
	assert.Empty(t, again.ProcessErrors)
}

func TestMemoryStore_ParentStatuses(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.Create(&Task{ID: "parent", Status: StatusDone}))
	require.NoError(t, s.Create(&Task{ID: "child", Status: StatusResolving}))
	require.NoError(t, s.AddDependency(Dependency{ParentID: "parent", ChildID: "child", Kind: KindIO}))

	statuses, err := s.ParentStatuses("child")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	require.NotNil(t, statuses[0].Status)
	assert.Equal(t, StatusDone, *statuses[0].Status)
}

func TestMemoryStore_ParentStatuses_DeletedParent(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.Create(&Task{ID: "parent", Status: StatusDone}))
	require.NoError(t, s.Create(&Task{ID: "child", Status: StatusResolving}))
	require.NoError(t, s.AddDependency(Dependency{ParentID: "parent", ChildID: "child", Kind: KindIO}))
	require.NoError(t, s.Delete("parent"))

	statuses, err := s.ParentStatuses("child")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Nil(t, statuses[0].Status)
}

func TestMemoryStore_ParentStatuses_IgnoresSubprocessEdges(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.Create(&Task{ID: "parent", Status: StatusError}))
	require.NoError(t, s.Create(&Task{ID: "child", Status: StatusResolving}))
	require.NoError(t, s.AddDependency(Dependency{ParentID: "parent", ChildID: "child", Kind: KindSubprocess}))

	statuses, err := s.ParentStatuses("child")
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestMemoryStore_WithLock_Serializes(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	require.NoError(t, s.Create(&Task{ID: "t1", Status: StatusResolving}))

	order := make(chan int, 2)
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithLock("t1", func() error {
			order <- 1
			close(started)
			<-done
			return nil
		})
	}()

	<-started
	go func() {
		_ = s.WithLock("t1", func() error {
			order <- 2
			return nil
		})
	}()
	close(done)

	first := <-order
	second := <-order
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}
