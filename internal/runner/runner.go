package runner

import (
	"os/exec"

	"github.com/cuemby/flowexec/internal/bus"
	"github.com/cuemby/flowexec/internal/log"
	"github.com/cuemby/flowexec/internal/sandbox"
	"github.com/cuemby/flowexec/internal/sharedstate"
	"github.com/cuemby/flowexec/internal/tasks"
)

// Runner hands a prepared sandbox off to a concrete execution backend.
type Runner interface {
	Run(task *tasks.Task, plan *sandbox.Plan, verbosity int) error
}

// LocalRunner runs tasks as local subprocesses via os/exec, launched in
// a goroutine and reaped with cmd.Wait().
type LocalRunner struct {
	bus     bus.Bus
	channel string
	state   *sharedstate.Client
}

// New returns a LocalRunner that publishes FINISH to channel on bus and
// tracks in-flight work in state.
func New(b bus.Bus, channel string, state *sharedstate.Client) *LocalRunner {
	return &LocalRunner{bus: b, channel: channel, state: state}
}

// Schedule implements scanner.Scheduler: it claims the +1 side of the
// scheduled-executor sync_semaphore/executor_count contract and hands
// the task to Run in a goroutine, logging (rather than propagating) a
// scheduling failure since the scanner has already committed its state
// transition by this point.
func (r *LocalRunner) Schedule(task *tasks.Task, plan *sandbox.Plan, executor string, verbosity int) {
	if _, err := r.state.Add(sharedstate.KeyExecutorCount, 1); err != nil {
		log.WithTaskID(task.ID).Error().Err(err).Msg("failed to increment executor_count")
		return
	}
	if _, err := r.state.Add(sharedstate.KeySyncSemaphore, 1); err != nil {
		log.WithTaskID(task.ID).Error().Err(err).Msg("failed to increment sync_semaphore")
		return
	}

	go func(task *tasks.Task, plan *sandbox.Plan) {
		if err := r.Run(task, plan, verbosity); err != nil {
			log.WithTaskID(task.ID).Error().Err(err).Msg("run failed")
		}
	}(task, plan)
}

// Run spawns plan.Argv and, once it exits, publishes exactly one FINISH
// message carrying the task's id, satisfying Run's core contract.
func (r *LocalRunner) Run(task *tasks.Task, plan *sandbox.Plan, verbosity int) error {
	cmd := exec.Command(plan.Argv[0], plan.Argv[1:]...)
	cmd.Dir = plan.RuntimeDir

	if err := cmd.Start(); err != nil {
		return r.finish(task.ID, verbosity)
	}

	waitErr := cmd.Wait()
	if waitErr != nil {
		log.WithTaskID(task.ID).Warn().Err(waitErr).Msg("task process exited non-zero")
	}
	return r.finish(task.ID, verbosity)
}

func (r *LocalRunner) finish(taskID string, verbosity int) error {
	return r.bus.Send(r.channel, bus.Message{
		Command: bus.CommandFinish,
		DataID:  taskID,
		Spawned: false,
		FollowUpExtra: bus.CommunicateExtra{
			Verbosity: verbosity,
		},
	}, true)
}
