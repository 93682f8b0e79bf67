package command

import (
	"path/filepath"

	"github.com/cuemby/flowexec/internal/barrier"
	"github.com/cuemby/flowexec/internal/bus"
	"github.com/cuemby/flowexec/internal/config"
	"github.com/cuemby/flowexec/internal/log"
	"github.com/cuemby/flowexec/internal/metrics"
	"github.com/cuemby/flowexec/internal/scanner"
	"github.com/cuemby/flowexec/internal/sharedstate"
)

// CacheEvictor clears whatever content-type cache the host process keeps
// warm across requests. The manager's CommandLoop runs outside the
// request cycle that would otherwise invalidate it, so it has to do so
// itself when FLOW_MANAGER_DISABLE_CTYPE_CACHE is set.
type CacheEvictor interface {
	EvictContentTypeCache()
}

type noopCacheEvictor struct{}

func (noopCacheEvictor) EvictContentTypeCache() {}

// Loop is the control-bus callback described in this package's doc
// comment. One Loop instance serves exactly one channel.
type Loop struct {
	bus          bus.Bus
	channel      string
	state        *sharedstate.Client
	coordinator  *barrier.Coordinator
	scan         *scanner.Scanner
	cfg          *config.Settings
	cacheEvictor CacheEvictor
}

// New builds a Loop over the given collaborators. cacheEvictor may be
// nil, in which case cache eviction is a no-op.
func New(b bus.Bus, channel string, state *sharedstate.Client, coordinator *barrier.Coordinator, scan *scanner.Scanner, cfg *config.Settings, cacheEvictor CacheEvictor) *Loop {
	if cacheEvictor == nil {
		cacheEvictor = noopCacheEvictor{}
	}
	return &Loop{bus: b, channel: channel, state: state, coordinator: coordinator, scan: scan, cfg: cfg, cacheEvictor: cacheEvictor}
}

// buildEffectiveSettings composes host configuration, the shared
// override map and any per-message overrides, in increasing precedence.
func (l *Loop) buildEffectiveSettings(perMessage map[string]any) (map[string]any, error) {
	overrides, err := l.state.Overrides()
	if err != nil {
		return nil, err
	}
	return config.Merge(l.cfg.ToMap(), overrides, perMessage), nil
}

// HandleMessage dispatches one bus.Message: it resolves effective
// settings, then runs the command-specific handler.
func (l *Loop) HandleMessage(msg bus.Message) error {
	effective, err := l.buildEffectiveSettings(msg.Settings)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(string(msg.Command), "error").Inc()
		return err
	}
	settings := config.FromMap(effective)

	switch msg.Command {
	case bus.CommandCommunicate:
		err = l.handleCommunicate(msg, &settings)
	case bus.CommandFinish:
		err = l.handleFinish(msg, &settings)
	default:
		log.WithComponent("command").Warn().Str("command", string(msg.Command)).Msg("ignoring unknown control-bus command")
		return nil
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.CommandsTotal.WithLabelValues(string(msg.Command), outcome).Inc()
	return err
}

func (l *Loop) handleCommunicate(msg bus.Message, settings *config.Settings) error {
	scanErr := l.scan.Scan(scanner.Options{
		Executor:  msg.Extra.Executor,
		Verbosity: msg.Extra.Verbosity,
		RunSync:   msg.Extra.RunSync,
		Settings:  settings,
	})

	// Always decrement sync_semaphore on completion, matching the
	// increment from the sender, regardless of scan outcome.
	if _, err := l.state.Add(sharedstate.KeySyncSemaphore, -1); err != nil {
		if scanErr == nil {
			scanErr = err
		}
	}

	if l.cfg.ManagerDisableCtypeCache {
		l.cacheEvictor.EvictContentTypeCache()
	}
	return scanErr
}

func (l *Loop) handleFinish(msg bus.Message, settings *config.Settings) error {
	if !l.cfg.ManagerKeepData {
		dir := filepath.Join(l.cfg.Executor.RuntimeDir, msg.DataID)
		if err := removeRuntimeDir(dir); err != nil {
			log.WithTaskID(msg.DataID).Error().Err(err).Msg("failed to remove runtime directory")
		}
	}

	var scanErr error
	if msg.Spawned {
		if _, err := l.state.Add(sharedstate.KeySyncSemaphore, 1); err != nil {
			return err
		}
		scanErr = l.scan.Scan(scanner.Options{
			Executor:  msg.FollowUpExtra.Executor,
			Verbosity: msg.FollowUpExtra.Verbosity,
			RunSync:   msg.FollowUpExtra.RunSync,
			Settings:  settings,
		})
		if _, err := l.state.Add(sharedstate.KeySyncSemaphore, -1); err != nil && scanErr == nil {
			scanErr = err
		}
	}

	if _, err := l.state.Add(sharedstate.KeyExecutorCount, -1); err != nil && scanErr == nil {
		scanErr = err
	}
	if _, err := l.state.Add(sharedstate.KeySyncSemaphore, -1); err != nil && scanErr == nil {
		scanErr = err
	}
	return scanErr
}
