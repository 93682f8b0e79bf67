// Package flowfsm implements a Raft-replicated sharedstate.Backend: every
// Set/CAS/Add/Reset passes through the Raft log before it is applied to
// the FSM's key space (sync_semaphore, sync_execution, executor_count and
// the override map). NewRaftBackend bootstraps a single-node group;
// joining additional voters is not implemented.
package flowfsm
