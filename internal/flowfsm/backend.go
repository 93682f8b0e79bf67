package flowfsm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/flowexec/internal/metrics"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// ErrNotLeader is the transient fault a RaftBackend surfaces when a
// mutation is attempted against a non-leader node; callers of CAS/Add
// must handle retries at a higher level.
var ErrNotLeader = errors.New("flowfsm: this node is not the raft leader")

// Config configures a single-node-bootstrapped RaftBackend. Joining
// additional voters is out of scope for the core dispatch subsystem (see
// DESIGN.md); this backend exists to demonstrate the replicated-counter
// story, not to implement cluster membership.
type Config struct {
	NodeID       string
	BindAddr     string
	DataDir      string
	ApplyTimeout time.Duration
}

// RaftBackend implements sharedstate.Backend on top of a Raft-replicated FSM.
type RaftBackend struct {
	raft         *raft.Raft
	fsm          *FSM
	applyTimeout time.Duration
}

// NewRaftBackend bootstraps a single-node Raft group rooted at cfg.DataDir.
func NewRaftBackend(cfg Config) (*RaftBackend, error) {
	if cfg.ApplyTimeout == 0 {
		cfg.ApplyTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("flowfsm: failed to create data dir: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("flowfsm: failed to resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("flowfsm: failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("flowfsm: failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("flowfsm: failed to create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("flowfsm: failed to create stable store: %w", err)
	}

	fsm := New()
	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("flowfsm: failed to create raft: %w", err)
	}

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
	})
	if err := future.Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
		return nil, fmt.Errorf("flowfsm: failed to bootstrap: %w", err)
	}

	return &RaftBackend{raft: r, fsm: fsm, applyTimeout: cfg.ApplyTimeout}, nil
}

func (b *RaftBackend) apply(cmd Command) (ApplyResult, error) {
	if b.raft.State() != raft.Leader {
		metrics.RaftLeader.Set(0)
		return ApplyResult{}, ErrNotLeader
	}
	metrics.RaftLeader.Set(1)
	data, err := json.Marshal(cmd)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("flowfsm: failed to encode command: %w", err)
	}

	future := b.raft.Apply(data, b.applyTimeout)
	if err := future.Error(); err != nil {
		return ApplyResult{}, fmt.Errorf("flowfsm: apply failed: %w", err)
	}
	result, ok := future.Response().(ApplyResult)
	if !ok {
		return ApplyResult{}, fmt.Errorf("flowfsm: unexpected apply response %T", future.Response())
	}
	return result, result.Err
}

func (b *RaftBackend) Get(key string) ([]byte, bool, error) {
	v, ok := b.fsm.Get(key)
	return v, ok, nil
}

func (b *RaftBackend) Set(key string, value []byte) error {
	_, err := b.apply(Command{Op: "set", Key: key, Value: value})
	return err
}

func (b *RaftBackend) CAS(key string, expected, newVal []byte) ([]byte, error) {
	result, err := b.apply(Command{Op: "cas", Key: key, Expected: expected, Value: newVal})
	if err != nil {
		return nil, err
	}
	return result.Previous, nil
}

func (b *RaftBackend) Add(key string, delta int64) (int64, error) {
	result, err := b.apply(Command{Op: "add", Key: key, Delta: delta})
	if err != nil {
		return 0, err
	}
	return result.Value, nil
}

func (b *RaftBackend) Reset(prefix string) error {
	_, err := b.apply(Command{Op: "reset", Prefix: prefix})
	return err
}

// IsLeader reports whether this node currently holds Raft leadership.
func (b *RaftBackend) IsLeader() bool {
	return b.raft.State() == raft.Leader
}

// Shutdown stops the underlying Raft instance.
func (b *RaftBackend) Shutdown() error {
	return b.raft.Shutdown().Error()
}
