// Package scanner implements the scan-lock-evaluate-schedule pass over
// RESOLVING tasks.
package scanner
