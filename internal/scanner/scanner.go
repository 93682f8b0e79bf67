package scanner

import (
	"errors"
	"fmt"

	"github.com/cuemby/flowexec/internal/config"
	"github.com/cuemby/flowexec/internal/dependency"
	"github.com/cuemby/flowexec/internal/engine"
	"github.com/cuemby/flowexec/internal/log"
	"github.com/cuemby/flowexec/internal/metrics"
	"github.com/cuemby/flowexec/internal/sandbox"
	"github.com/cuemby/flowexec/internal/tasks"
)

// Scheduler is the post-commit hand-off a scan pass makes for each task
// it leaves in WAITING with a built sandbox; a task an engine marks DONE
// (zero work) is not handed off. Hand-off happens after
// the per-task transaction has "committed" (i.e. the lock has been
// released) so a rolled-back evaluation never reaches a runner.
type Scheduler interface {
	Schedule(task *tasks.Task, plan *sandbox.Plan, executor string, verbosity int)
}

// Options carries the per-scan parameters a COMMUNICATE command's Extra
// field may override.
type Options struct {
	Executor  string
	Verbosity int
	RunSync   bool

	// Settings is the effective configuration composed from host config,
	// the shared override map and any per-message overrides (see
	// command.Loop.buildEffectiveSettings). A nil value means the
	// Scanner's SandboxBuilder falls back to its own bound config.Settings.
	Settings *config.Settings
}

// Scanner runs the scan-lock-evaluate-schedule pass described in this
// package's doc comment.
type Scanner struct {
	store     tasks.Store
	registry  *engine.Registry
	builder   *sandbox.Builder
	scheduler Scheduler
}

// New builds a Scanner over the given collaborators.
func New(store tasks.Store, registry *engine.Registry, builder *sandbox.Builder, scheduler Scheduler) *Scanner {
	return &Scanner{store: store, registry: registry, builder: builder, scheduler: scheduler}
}

// Scan performs one pass over every task currently in RESOLVING status.
// If opts.Executor is set, it is used as the executor module for this pass
// in place of the registry's active executor, since a COMMUNICATE command
// may override it; the registry itself is not reloaded.
func (s *Scanner) Scan(opts Options) error {
	timer := metrics.NewTimer()
	err := s.scan(opts)
	timer.ObserveDuration(metrics.ScanDuration)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ScansTotal.WithLabelValues(outcome).Inc()
	return err
}

func (s *Scanner) scan(opts Options) error {
	executorModule := s.registry.ExecutorHandle().Name()
	if opts.Executor != "" {
		executorModule = opts.Executor
	}

	snapshot, err := s.store.ListByStatus(tasks.StatusResolving)
	if err != nil {
		return fmt.Errorf("scanner: failed to list resolving tasks: %w", err)
	}

	for _, t := range snapshot {
		if err := s.scanOne(t.ID, opts, executorModule); err != nil {
			// An integrity violation terminates the pass; tasks already
			// scheduled in prior iterations proceed regardless.
			return err
		}
	}
	return nil
}

func (s *Scanner) scanOne(id string, opts Options, executorModule string) error {
	var scheduled *sandbox.Plan
	var scheduledTask *tasks.Task

	err := s.store.WithLock(id, func() error {
		task, err := s.store.Get(id)
		if err != nil {
			if errors.Is(err, tasks.ErrNotFound) {
				return nil
			}
			return err
		}
		if task.Status != tasks.StatusResolving {
			return nil
		}

		parents, err := s.store.ParentStatuses(id)
		if err != nil {
			return err
		}

		switch dependency.Resolve(parents) {
		case dependency.Error:
			task.Status = tasks.StatusError
			task.AppendError("One or more inputs have status ERROR")
			task.SetRC(1)
			metrics.TasksFailedTotal.WithLabelValues("dependency").Inc()
			metrics.TasksTotal.WithLabelValues(string(task.Status)).Inc()
			return s.store.Save(task, true)
		case dependency.Pending:
			return nil
		}

		program := ""
		zeroWork := false
		if task.Process.HasRun() {
			eng, err := s.registry.ExecutionEngine(task.Process.RunLanguage)
			if err != nil {
				task.Status = tasks.StatusError
				task.AppendError(err.Error())
				metrics.TasksFailedTotal.WithLabelValues("engine").Inc()
				metrics.TasksTotal.WithLabelValues(string(task.Status)).Inc()
				return s.store.Save(task, true)
			}
			out, zw, evalErr := eng.Evaluate(task.Process.RunProgram, engine.EvalContext{TaskID: task.ID, DisplayName: task.DisplayName})
			if evalErr != nil {
				task.Status = tasks.StatusError
				task.AppendError(evalErr.Error())
				metrics.TasksFailedTotal.WithLabelValues("evaluate").Inc()
				metrics.TasksTotal.WithLabelValues(string(task.Status)).Inc()
				return s.store.Save(task, true)
			}
			program, zeroWork = out, zw
		}

		if zeroWork {
			task.Status = tasks.StatusDone
		} else if task.Status != tasks.StatusDone {
			task.Status = tasks.StatusWaiting
		}
		metrics.TasksTotal.WithLabelValues(string(task.Status)).Inc()

		if err := s.store.Save(task, true); err != nil {
			return err
		}

		if zeroWork {
			return nil
		}

		buildTimer := metrics.NewTimer()
		plan, err := s.builder.Build(task, program, executorModule, nil, nil, opts.Settings)
		buildTimer.ObserveDuration(metrics.SandboxBuildDuration)
		if err != nil {
			log.WithTaskID(task.ID).Error().Err(err).Msg("sandbox build failed")
			var permErr *sandbox.PermissionError
			if errors.As(err, &permErr) {
				task.Status = tasks.StatusError
				task.AppendError(err.Error())
			} else {
				// Leave the task for a later pass.
				task.Status = tasks.StatusResolving
			}
			return s.store.Save(task, true)
		}

		scheduled, scheduledTask = plan, task
		return nil
	})
	if err != nil {
		return err
	}

	if scheduled != nil {
		metrics.TasksScheduledTotal.Inc()
		s.scheduler.Schedule(scheduledTask, scheduled, opts.Executor, opts.Verbosity)
	}
	return nil
}
