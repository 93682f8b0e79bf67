// Package dependency computes a task's aggregate readiness from the
// status set of its IO-kind parents.
package dependency
