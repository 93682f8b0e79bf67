package metrics

import "sync/atomic"

// syncSemaphoreGauge backs the SyncSemaphore GaugeFunc; the shared-state
// counter lives behind a Backend interface that has no push-based observer,
// so barrier.Coordinator.ExitSync samples it on every iteration of its
// spin-wait and publishes the value here.
var syncSemaphoreGauge atomic.Int64

// SetSyncSemaphore publishes the current sync_semaphore value for the
// SyncSemaphore gauge to read back.
func SetSyncSemaphore(v int64) {
	syncSemaphoreGauge.Store(v)
}
