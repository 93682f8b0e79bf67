package command

import (
	"github.com/cuemby/flowexec/internal/bus"
	"github.com/cuemby/flowexec/internal/sharedstate"
)

// Communicate is the sender half of the control-bus protocol: it
// increments sync_semaphore before sending so a racing ExitSync never
// observes a false drain, optionally marshals the current configuration
// into the override store, and sends COMMUNICATE on the channel. When
// extra.RunSync is set it immediately enters and exits the
// synchronization scope, blocking the caller until the scan this message
// triggers has drained.
func (l *Loop) Communicate(extra bus.CommunicateExtra, settings map[string]any, saveOverrides bool) error {
	if _, err := l.state.Add(sharedstate.KeySyncSemaphore, 1); err != nil {
		return err
	}

	if saveOverrides {
		if err := l.state.SetOverrides(l.cfg.ToMap()); err != nil {
			return err
		}
	}

	msg := bus.Message{Command: bus.CommandCommunicate, Settings: settings, Extra: extra}
	if err := l.bus.Send(l.channel, msg, true); err != nil {
		return err
	}

	if !extra.RunSync {
		return nil
	}
	if err := l.coordinator.EnterSync(false); err != nil {
		return err
	}
	return l.coordinator.ExitSync()
}
