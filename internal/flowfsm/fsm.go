package flowfsm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/raft"
)

// Command is a single state-change operation replicated through the Raft
// log.
type Command struct {
	Op       string `json:"op"` // "set", "cas", "add", "reset"
	Key      string `json:"key,omitempty"`
	Value    []byte `json:"value,omitempty"`
	Expected []byte `json:"expected,omitempty"`
	Delta    int64  `json:"delta,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// ApplyResult is returned from FSM.Apply via the raft.ApplyFuture and
// surfaced back to the Backend caller.
type ApplyResult struct {
	Previous []byte
	Value    int64
	Err      error
}

// FSM is the Raft finite state machine backing the shared-state key space.
type FSM struct {
	mu   sync.Mutex
	data map[string][]byte
}

// New creates an empty FSM.
func New() *FSM {
	return &FSM{data: make(map[string][]byte)}
}

// Apply applies one committed Raft log entry.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return ApplyResult{Err: fmt.Errorf("flowfsm: bad command: %w", err)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case "set":
		f.data[cmd.Key] = cmd.Value
		return ApplyResult{}

	case "cas":
		current, ok := f.data[cmd.Key]
		var prev []byte
		if ok {
			prev = current
		}
		matches := (!ok && cmd.Expected == nil) || (ok && bytes.Equal(current, cmd.Expected))
		if matches {
			f.data[cmd.Key] = cmd.Value
		}
		return ApplyResult{Previous: prev}

	case "add":
		var current int64
		if raw, ok := f.data[cmd.Key]; ok {
			current, _ = strconv.ParseInt(string(raw), 10, 64)
		}
		current += cmd.Delta
		f.data[cmd.Key] = []byte(strconv.FormatInt(current, 10))
		return ApplyResult{Value: current}

	case "reset":
		for k := range f.data {
			if strings.HasPrefix(k, cmd.Prefix+":") {
				delete(f.data, k)
			}
		}
		return ApplyResult{}

	default:
		return ApplyResult{Err: fmt.Errorf("flowfsm: unknown op %q", cmd.Op)}
	}
}

// Get performs a local (non-consensus) read of the FSM's current state.
// Reads are not linearizable across a partition; callers that need strict
// linearizability should route through a Raft read-index barrier, which
// this backend does not implement (see DESIGN.md).
func (f *FSM) Get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

// Snapshot implements raft.FSM.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := make(map[string][]byte, len(f.data))
	for k, v := range f.data {
		cp[k] = append([]byte(nil), v...)
	}
	return &snapshot{data: cp}, nil
}

// Restore implements raft.FSM.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var data map[string][]byte
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("flowfsm: failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = data
	return nil
}

type snapshot struct {
	data map[string][]byte
}

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.data); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *snapshot) Release() {}
