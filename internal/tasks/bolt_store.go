package tasks

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketTasks = []byte("tasks")
	bucketDeps  = []byte("dependencies")
)

// BoltStore is a durable, single-process Store backed by bbolt. It plays
// the role a Postgres-backed Data model would in a multi-process
// deployment, minus multi-process row locking: BoltStore pairs its bbolt
// transactions with the in-process lockTable so WithLock still serializes
// per-task access.
type BoltStore struct {
	*lockTable
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "tasks.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketTasks, bucketDeps} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{lockTable: newLockTable(), db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Get(id string) (*Task, error) {
	var t Task
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTasks).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(raw, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) Create(t *Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		if b.Get([]byte(t.ID)) != nil {
			return fmt.Errorf("task %s already exists", t.ID)
		}
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return b.Put([]byte(t.ID), data)
	})
}

func (s *BoltStore) Save(t *Task, renderName bool) error {
	if renderName && t.NameTemplate != "" {
		t.DisplayName = renderDisplayName(t.NameTemplate, t)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTasks).Put([]byte(t.ID), data)
	})
}

func (s *BoltStore) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).Delete([]byte(id))
	})
}

func (s *BoltStore) ListByStatus(status Status) ([]*Task, error) {
	var out []*Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(_, v []byte) error {
			var t Task
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if t.Status == status {
				out = append(out, &t)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ParentStatuses(childID string) ([]ParentStatus, error) {
	var deps []Dependency
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeps).ForEach(func(_, v []byte) error {
			var d Dependency
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			deps = append(deps, d)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []ParentStatus
	for _, dep := range deps {
		if dep.ChildID != childID || dep.Kind != KindIO || seen[dep.ParentID] {
			continue
		}
		seen[dep.ParentID] = true

		parent, err := s.Get(dep.ParentID)
		if err != nil {
			out = append(out, ParentStatus{ParentID: dep.ParentID, Status: nil})
			continue
		}
		st := parent.Status
		out = append(out, ParentStatus{ParentID: dep.ParentID, Status: &st})
	}
	return out, nil
}

func (s *BoltStore) AddDependency(dep Dependency) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeps)
		key := fmt.Sprintf("%s->%s", dep.ParentID, dep.ChildID)
		data, err := json.Marshal(dep)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}
