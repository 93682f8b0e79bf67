// Package tasks holds the task graph data model and its storage
// abstraction: the external "data object" record the rest of the manager
// schedules against.
package tasks
