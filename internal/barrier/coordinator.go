package barrier

import (
	"errors"
	"time"

	"github.com/cuemby/flowexec/internal/metrics"
	"github.com/cuemby/flowexec/internal/sharedstate"
)

// ErrAlreadySynchronizing is returned by EnterSync when another caller
// already holds the synchronization scope: only one user at a time may
// enter a synchronization transaction.
var ErrAlreadySynchronizing = errors.New("barrier: already synchronizing")

// spinInterval is the bounded sleep used while waiting for the executor
// semaphore to drain on exit; the bus provides no blocking primitive so
// the wait is a deliberate spin.
const spinInterval = 500 * time.Millisecond

// Coordinator implements the settings-override and synchronization
// scopes over a sharedstate.Client.
type Coordinator struct {
	state *sharedstate.Client
}

// New returns a Coordinator backed by state.
func New(state *sharedstate.Client) *Coordinator {
	return &Coordinator{state: state}
}

// EnterOverrides merges overrides into the shared override map and
// returns a function that restores the prior value; reentrant calls
// stack via the save/restore discipline.
func (c *Coordinator) EnterOverrides(overrides map[string]any) (exit func() error, err error) {
	prev, err := c.state.Overrides()
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(prev)+len(overrides))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	if err := c.state.SetOverrides(merged); err != nil {
		return nil, err
	}

	return func() error {
		return c.state.SetOverrides(prev)
	}, nil
}

// EnterSync enters the synchronization scope. When force is set,
// sync_execution is unconditionally claimed; otherwise entry is a CAS
// that fails with ErrAlreadySynchronizing if another caller already
// holds it.
func (c *Coordinator) EnterSync(force bool) error {
	if force {
		return c.state.SetInt(sharedstate.KeySyncExecution, 1)
	}
	prev, err := c.state.CAS(sharedstate.KeySyncExecution, 0, 1)
	if err != nil {
		return err
	}
	if prev == 1 {
		return ErrAlreadySynchronizing
	}
	return nil
}

// ExitSync spin-waits until the executor semaphore has drained to zero,
// then releases sync_execution. It panics-free asserts the release CAS
// observed the expected prior value of 1: a mismatch means two callers
// both believed they held the scope, which is a coordination bug rather
// than a recoverable runtime condition.
func (c *Coordinator) ExitSync() error {
	timer := metrics.NewTimer()
	for {
		sem, err := c.state.GetInt(sharedstate.KeySyncSemaphore)
		if err != nil {
			return err
		}
		metrics.SetSyncSemaphore(sem)
		if sem == 0 {
			break
		}
		time.Sleep(spinInterval)
	}
	timer.ObserveDuration(metrics.BarrierWaitDuration)

	prev, err := c.state.CAS(sharedstate.KeySyncExecution, 1, 0)
	if err != nil {
		return err
	}
	if prev != 1 {
		return errors.New("barrier: sync_execution released by a non-holder")
	}
	return nil
}

// Barrier enters the synchronization scope, invokes send (expected to
// issue a COMMUNICATE on the control bus), and exits the scope, waiting
// for the semaphore to drain. At least one executor must eventually
// finish or this call blocks forever; callers are responsible for that
// precondition. If send fails, sync_execution is released without waiting
// and send's error is returned.
func (c *Coordinator) Barrier(send func() error) error {
	if err := c.EnterSync(false); err != nil {
		return err
	}
	if err := send(); err != nil {
		_, _ = c.state.CAS(sharedstate.KeySyncExecution, 1, 0)
		return err
	}
	return c.ExitSync()
}
